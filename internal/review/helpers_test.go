package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/apreview/internal/answers"
	"github.com/fyrsmithlabs/apreview/internal/questionnaire"
	"github.com/fyrsmithlabs/apreview/internal/session"
	"github.com/fyrsmithlabs/apreview/internal/sink"
)

type fakeRecorder struct {
	mu   sync.Mutex
	rows []*answers.Set
	err  error
}

func (r *fakeRecorder) Append(_ context.Context, row *answers.Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, row.Clone())
	return nil
}

func (r *fakeRecorder) Contains(_ context.Context, submissionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	for _, row := range r.rows {
		if v, _ := row.Get(answers.ColumnSubmissionID); v.String() == submissionID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// fakeTransmitter answers with statuses in order, repeating the last one.
type fakeTransmitter struct {
	mu       sync.Mutex
	statuses []int
	calls    []*answers.Set
}

func (f *fakeTransmitter) Transmit(_ context.Context, row *answers.Set) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, row.Clone())
	code := 200
	if len(f.statuses) > 0 {
		code = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	if code != 200 && code != 202 {
		return code, &sink.StatusError{StatusCode: code}
	}
	return code, nil
}

func (f *fakeTransmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	svc         *Service
	def         *questionnaire.Definition
	store       *session.MemoryStore
	recorder    *fakeRecorder
	transmitter *fakeTransmitter
}

var fixedNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	def, err := questionnaire.Default()
	require.NoError(t, err)

	f := &fixture{
		def:         def,
		store:       session.NewMemoryStore(0),
		recorder:    &fakeRecorder{},
		transmitter: &fakeTransmitter{},
	}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	f.svc, err = NewService(def, f.store, f.recorder, f.transmitter, opts...)
	require.NoError(t, err)
	return f
}

func text(kv ...string) map[string]answers.Value {
	m := make(map[string]answers.Value, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = answers.Text(kv[i+1])
	}
	return m
}

func identity(name, college, program string) map[string]answers.Value {
	return text(
		"reviewer_name", name,
		"college_name", college,
		"program_name", program,
	)
}

// fixedAnswers answers every non-repeating choice question.
func fixedAnswers() map[string]answers.Value {
	return text(
		"program_info_complete", "Yes",
		"yearly_assessment_complete", "Yes",
		"cm_pslos_listed", "Yes",
		"cm_courses_listed", "Yes",
		"cm_indicators", "No",
		"cm_assessed", "Cannot Confirm",
		"cm_schedule", "Yes",
		"cm_instrument", "Yes",
		"student_success_outcome", "Yes",
		"student_success_measure", "No",
		"appendix_table_of_contents", "Yes",
		"appendix_pslo_description", "Yes",
		"estimated_duration", "45",
	)
}

func countRendered(v *View, partID string) int {
	for _, p := range v.Parts {
		if p.ID == partID {
			return len(p.Blocks)
		}
	}
	return 0
}

func findQuestion(v *View, id string) (QuestionView, bool) {
	for _, p := range v.Parts {
		for _, b := range p.Blocks {
			for _, q := range b.Questions {
				if q.ID == id {
					return q, true
				}
			}
		}
	}
	return QuestionView{}, false
}

var errDiskFull = errors.New("disk full")

// flakyStore fails the next Save whose session matches failOn.
type flakyStore struct {
	*session.MemoryStore

	mu     sync.Mutex
	failOn func(*session.Session) bool
	fails  int
}

func (s *flakyStore) failNext(match func(*session.Session) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn = match
}

func (s *flakyStore) Save(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	match := s.failOn
	if match != nil && match(sess) {
		s.failOn = nil
		s.fails++
		s.mu.Unlock()
		return errDiskFull
	}
	s.mu.Unlock()
	return s.MemoryStore.Save(ctx, sess)
}

func newFlakyFixture(t *testing.T) (*fixture, *flakyStore) {
	t.Helper()
	f := newFixture(t)
	store := &flakyStore{MemoryStore: f.store}
	svc, err := NewService(f.def, store, f.recorder, f.transmitter,
		WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	f.svc = svc
	return f, store
}
