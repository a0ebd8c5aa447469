package branching

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qualityFamily() Family {
	return Family{
		ID:      "pslo_quality",
		Floor:   2,
		Ceiling: 28,
		Another: func(n int) string { return fmt.Sprintf("more_pslo_%d", n) },
	}
}

type answerMap map[string]string

func (a answerMap) lookup(id string) (string, bool) {
	v, ok := a[id]
	return v, ok
}

func newTestController(t *testing.T, families ...Family) *Controller {
	t.Helper()
	c, err := NewController(families...)
	require.NoError(t, err)
	return c
}

func TestNewController(t *testing.T) {
	another := func(n int) string { return "x" }
	tests := []struct {
		name    string
		family  []Family
		wantErr string
	}{
		{name: "valid", family: []Family{qualityFamily()}},
		{name: "missing id", family: []Family{{Floor: 1, Ceiling: 2, Another: another}}, wantErr: "family id is required"},
		{name: "zero floor", family: []Family{{ID: "a", Floor: 0, Ceiling: 2, Another: another}}, wantErr: "floor must be >= 1"},
		{name: "ceiling below floor", family: []Family{{ID: "a", Floor: 3, Ceiling: 2, Another: another}}, wantErr: "below floor"},
		{name: "no another", family: []Family{{ID: "a", Floor: 1, Ceiling: 2}}, wantErr: "another-question id is required"},
		{name: "duplicate", family: []Family{qualityFamily(), qualityFamily()}, wantErr: "declared twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewController(tt.family...)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestInitSeedsFloor(t *testing.T) {
	c := newTestController(t, qualityFamily())

	counts := Counts{}
	c.Init(counts)
	assert.Equal(t, 2, counts["pslo_quality"])

	counts["pslo_quality"] = 7
	c.Init(counts)
	assert.Equal(t, 7, counts["pslo_quality"], "init must not shrink a grown family")
}

func TestEvaluateGrowsOnLastInstance(t *testing.T) {
	c := newTestController(t, qualityFamily())
	counts := Counts{}
	c.Init(counts)

	answers := answerMap{"more_pslo_2": "Yes"}
	grown := c.Evaluate(counts, answers.lookup)

	require.Len(t, grown, 1)
	assert.Equal(t, Growth{Family: "pslo_quality", From: 2, To: 3}, grown[0])
	assert.Equal(t, 3, counts["pslo_quality"])
}

func TestEvaluateIsIdempotent(t *testing.T) {
	c := newTestController(t, qualityFamily())
	counts := Counts{}
	c.Init(counts)
	answers := answerMap{"more_pslo_2": "Yes"}

	c.Evaluate(counts, answers.lookup)
	for i := 0; i < 5; i++ {
		assert.Empty(t, c.Evaluate(counts, answers.lookup))
	}
	assert.Equal(t, 3, counts["pslo_quality"])
}

func TestEvaluateNoTransition(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		answers answerMap
	}{
		{name: "unanswered", count: 2, answers: answerMap{}},
		{name: "negative", count: 2, answers: answerMap{"more_pslo_2": "No"}},
		{name: "stale affirmative on earlier instance", count: 4, answers: answerMap{"more_pslo_2": "Yes", "more_pslo_3": "Yes"}},
		{name: "other answer text", count: 2, answers: answerMap{"more_pslo_2": "yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, qualityFamily())
			counts := Counts{"pslo_quality": tt.count}
			assert.Empty(t, c.Evaluate(counts, tt.answers.lookup))
			assert.Equal(t, tt.count, counts["pslo_quality"])
		})
	}
}

func TestEvaluateGrowsOneAtATime(t *testing.T) {
	c := newTestController(t, qualityFamily())
	counts := Counts{}
	c.Init(counts)
	answers := answerMap{}

	for n := 2; n < 10; n++ {
		answers[fmt.Sprintf("more_pslo_%d", n)] = "Yes"
		before := counts["pslo_quality"]
		grown := c.Evaluate(counts, answers.lookup)
		require.Len(t, grown, 1)
		assert.Equal(t, before+1, counts["pslo_quality"])
	}
	assert.Equal(t, 10, counts["pslo_quality"])

	// Changing an earlier answer to No never shrinks the family.
	answers["more_pslo_4"] = "No"
	c.Evaluate(counts, answers.lookup)
	assert.Equal(t, 10, counts["pslo_quality"])
}

func TestEvaluateStopsAtCeiling(t *testing.T) {
	c := newTestController(t, qualityFamily())
	counts := Counts{}
	c.Init(counts)

	// Answer Yes on every possible instance, far past the ceiling.
	answers := answerMap{}
	for n := 1; n <= 40; n++ {
		answers[fmt.Sprintf("more_pslo_%d", n)] = "Yes"
	}
	for i := 0; i < 60; i++ {
		c.Evaluate(counts, answers.lookup)
		assert.LessOrEqual(t, counts["pslo_quality"], 28)
	}
	assert.Equal(t, 28, counts["pslo_quality"])
	assert.True(t, c.AtCeiling(counts, "pslo_quality"))
	assert.Empty(t, c.Evaluate(counts, answers.lookup))
}

func TestEvaluateFamiliesAreIndependent(t *testing.T) {
	measures := Family{
		ID:          "pslo_measures",
		Floor:       2,
		Ceiling:     28,
		Another:     func(n int) string { return fmt.Sprintf("another_pslo_mm_%d", n) },
		Affirmative: "Yes",
	}
	c := newTestController(t, qualityFamily(), measures)
	counts := Counts{}
	c.Init(counts)

	answers := answerMap{"another_pslo_mm_2": "Yes"}
	grown := c.Evaluate(counts, answers.lookup)

	require.Len(t, grown, 1)
	assert.Equal(t, "pslo_measures", grown[0].Family)
	assert.Equal(t, 2, counts["pslo_quality"])
	assert.Equal(t, 3, counts["pslo_measures"])
}

func TestEvaluateLiftsCountBelowFloor(t *testing.T) {
	c := newTestController(t, qualityFamily())
	counts := Counts{"pslo_quality": 0}

	assert.Empty(t, c.Evaluate(counts, answerMap{}.lookup))
	assert.Equal(t, 2, counts["pslo_quality"])
}
