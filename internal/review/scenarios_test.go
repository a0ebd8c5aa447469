package review

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/apreview/internal/answers"
	"github.com/fyrsmithlabs/apreview/internal/session"
	"github.com/fyrsmithlabs/apreview/internal/sink"
)

func TestReviewerNeverAddsBlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	v, err := f.svc.Create(ctx)
	require.NoError(t, err)
	id := v.SessionID

	_, err = f.svc.Apply(ctx, id, identity("Ada Lovelace", "Engineering", "BS Computing"))
	require.NoError(t, err)
	v, err = f.svc.Apply(ctx, id, fixedAnswers())
	require.NoError(t, err)
	v, err = f.svc.Apply(ctx, id, text(
		"pslo1_q1", "Yes",
		"pslo2_q1", "No",
		"more_pslo_2", "No",
		"mm_pslo1_q1", "Yes",
		"another_pslo_mm_2", "No",
	))
	require.NoError(t, err)

	assert.Equal(t, 2, countRendered(v, "pslo_quality"))
	assert.Equal(t, 2, countRendered(v, "pslo_measures"))
	for _, fam := range v.Families {
		assert.Equal(t, 2, fam.Count, fam.ID)
		assert.False(t, fam.AtCeiling, fam.ID)
	}

	receipt, err := f.svc.Submit(ctx, id)
	require.NoError(t, err)
	assert.True(t, receipt.Recorded)
	assert.True(t, receipt.Delivered)
	assert.Equal(t, 200, receipt.StatusCode)
	assert.Equal(t, 1, receipt.Attempts)

	require.Equal(t, 1, f.recorder.count())
	require.Equal(t, 1, f.transmitter.count())
	row := f.recorder.rows[0]

	want := len(answers.HeaderColumns())
	for _, b := range f.def.Blocks(nil) {
		for _, field := range b.Fields {
			if field.Identity == "" {
				want++
			}
		}
	}
	assert.Equal(t, want, row.Len())
	for _, k := range row.Keys() {
		assert.NotContains(t, k, "PSLO3", "row has a column beyond the floor")
	}

	name, _ := row.Get(answers.ColumnReviewerName)
	assert.Equal(t, "Ada Lovelace", name.String())
	ts, _ := row.Get(answers.ColumnTimestamp)
	assert.Equal(t, "2025-03-14T09:30:00", ts.String())
	q1, _ := row.Get("PSLO1 Quality 1")
	assert.Equal(t, "Yes", q1.String())
	missing, _ := row.Get("Missing Items")
	assert.Equal(t, "None", missing.String())

	assert.Equal(t, row.Keys(), f.transmitter.calls[0].Keys())
}

func TestReviewerAddsTwoBlocks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	v, err := f.svc.Create(ctx)
	require.NoError(t, err)
	id := v.SessionID

	_, err = f.svc.Apply(ctx, id, text(
		"pslo1_q1", "Yes",
		"pslo2_q3", "Cannot Confirm",
	))
	require.NoError(t, err)

	v, err = f.svc.Apply(ctx, id, text("more_pslo_2", "Yes"))
	require.NoError(t, err)
	assert.Equal(t, 3, countRendered(v, "pslo_quality"))
	assert.Equal(t, []GrowthRecord{{Family: "pslo_quality", From: 2, To: 3}}, v.Grown)
	q, ok := findQuestion(v, "pslo1_q1")
	require.True(t, ok)
	require.NotNil(t, q.Value)
	assert.Equal(t, "Yes", q.Value.String())
	_, ok = findQuestion(v, "more_pslo_3")
	assert.True(t, ok)

	v, err = f.svc.Apply(ctx, id, text("more_pslo_3", "Yes"))
	require.NoError(t, err)
	assert.Equal(t, 4, countRendered(v, "pslo_quality"))
	assert.Equal(t, 2, countRendered(v, "pslo_measures"))
	for _, qid := range []string{"pslo1_q1", "pslo2_q3", "more_pslo_2", "more_pslo_3"} {
		q, ok := findQuestion(v, qid)
		require.True(t, ok, qid)
		assert.NotNil(t, q.Value, qid)
	}
	q, _ = findQuestion(v, "pslo2_q3")
	assert.Equal(t, "Cannot Confirm", q.Value.String())

	// Re-rendering with unchanged answers does not grow again.
	v, err = f.svc.Apply(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, countRendered(v, "pslo_quality"))
	assert.Empty(t, v.Grown)
}

func TestSubmitBlockedByBlankProgram(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	v, err := f.svc.Create(ctx)
	require.NoError(t, err)
	id := v.SessionID

	_, err = f.svc.Apply(ctx, id, identity("Ada Lovelace", "Engineering", "   "))
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, id, fixedAnswers())
	require.NoError(t, err)

	receipt, err := f.svc.Submit(ctx, id)
	assert.Nil(t, receipt)
	require.Error(t, err)
	assert.ErrorIs(t, err, answers.ErrMissingRequiredField)
	var missing *answers.MissingRequiredFieldError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{answers.ColumnProgramName}, missing.Fields)

	assert.Zero(t, f.recorder.count())
	assert.Zero(t, f.transmitter.count())

	// The session stays editable and submits once fixed.
	_, err = f.svc.Apply(ctx, id, text("program_name", "BS Computing"))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, f.recorder.count())
}

func TestWebhookFailureRetainsSubmission(t *testing.T) {
	ctx := context.Background()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	client := &http.Client{}
	defer client.CloseIdleConnections()

	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "responses.csv")
	csvSink, err := sink.OpenCSV(path, f.def.Schema())
	require.NoError(t, err)
	svc, err := NewService(f.def, f.store, csvSink,
		sink.NewWebhook(srv.URL, 5*time.Second, sink.WithHTTPClient(client)),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)

	v, err := svc.Create(ctx)
	require.NoError(t, err)
	id := v.SessionID
	_, err = svc.Apply(ctx, id, identity("Ada Lovelace", "Engineering", "BS Computing"))
	require.NoError(t, err)

	receipt, err := svc.Submit(ctx, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDelivery)
	assert.ErrorIs(t, err, sink.ErrTransmit)
	assert.Equal(t, 500, sink.StatusCode(err))
	require.NotNil(t, receipt)
	assert.True(t, receipt.Recorded)
	assert.False(t, receipt.Delivered)
	assert.Equal(t, 500, receipt.StatusCode)
	assert.NotEmpty(t, receipt.Error)

	stored, err := f.store.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, stored.Submission)
	assert.Equal(t, receipt.SubmissionID, stored.Submission.ID)
	assert.Equal(t, 1, stored.Delivery.Attempts)

	assert.Len(t, readRows(t, path), 2)

	receipt, err = svc.Retry(ctx, id)
	require.NoError(t, err)
	assert.True(t, receipt.Delivered)
	assert.Equal(t, 200, receipt.StatusCode)
	assert.Equal(t, 2, receipt.Attempts)
	assert.Empty(t, receipt.Error)

	rows := readRows(t, path)
	require.Len(t, rows, 2, "retry must not append a row")
	assert.Equal(t, receipt.SubmissionID, rows[1][0])
	assert.Equal(t, int32(2), calls.Load())

	_, err = svc.Retry(ctx, id)
	assert.ErrorIs(t, err, ErrAlreadyDelivered)
	_, err = svc.Submit(ctx, id)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Len(t, readRows(t, path), 2)
	assert.Equal(t, int32(2), calls.Load())
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSubmitRecordFailureLeavesSessionOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.recorder.err = errDiskFull

	v, err := f.svc.Create(ctx)
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, v.SessionID, identity("Ada", "Engineering", "BS Computing"))
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, v.SessionID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecord)
	assert.True(t, errors.Is(err, errDiskFull))
	assert.Zero(t, f.transmitter.count())

	stored, err := f.store.Get(ctx, v.SessionID)
	require.NoError(t, err)
	assert.False(t, stored.Submitted())

	f.recorder.mu.Lock()
	f.recorder.err = nil
	f.recorder.mu.Unlock()
	_, err = f.svc.Submit(ctx, v.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.recorder.count())
}

func TestSubmitUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)
}
