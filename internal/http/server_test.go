package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/apreview/internal/answers"
	"github.com/fyrsmithlabs/apreview/internal/logging"
	"github.com/fyrsmithlabs/apreview/internal/questionnaire"
	"github.com/fyrsmithlabs/apreview/internal/review"
	"github.com/fyrsmithlabs/apreview/internal/session"
	"github.com/fyrsmithlabs/apreview/internal/sink"
)

type stubRecorder struct {
	mu   sync.Mutex
	rows int
	err  error
}

func (r *stubRecorder) Append(context.Context, *answers.Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rows++
	return nil
}

func (r *stubRecorder) Contains(context.Context, string) (bool, error) {
	return false, nil
}

type stubTransmitter struct {
	mu     sync.Mutex
	status int
	calls  int
}

func (t *stubTransmitter) Transmit(context.Context, *answers.Set) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.status != http.StatusOK && t.status != http.StatusAccepted {
		return t.status, &sink.StatusError{StatusCode: t.status}
	}
	return t.status, nil
}

type testServer struct {
	*Server
	recorder    *stubRecorder
	transmitter *stubTransmitter
}

func setupTestServer(t *testing.T, cfg *Config) *testServer {
	t.Helper()
	def, err := questionnaire.Default()
	require.NoError(t, err)

	rec := &stubRecorder{}
	tx := &stubTransmitter{status: http.StatusOK}
	svc, err := review.NewService(def, session.NewMemoryStore(0), rec, tx)
	require.NoError(t, err)

	server, err := NewServer(svc, logging.NewNop(), cfg)
	require.NoError(t, err)
	return &testServer{Server: server, recorder: rec, transmitter: tx}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) create(t *testing.T) review.View {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var view review.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func answersBody(kv ...any) AnswersRequest {
	req := AnswersRequest{Answers: make(map[string]answers.Value)}
	for i := 0; i+1 < len(kv); i += 2 {
		switch v := kv[i+1].(type) {
		case string:
			req.Answers[kv[i].(string)] = answers.Text(v)
		case []string:
			req.Answers[kv[i].(string)] = answers.Items(v...)
		}
	}
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer(t *testing.T) {
	def, err := questionnaire.Default()
	require.NoError(t, err)
	svc, err := review.NewService(def, session.NewMemoryStore(0), &stubRecorder{}, &stubTransmitter{})
	require.NoError(t, err)

	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Host: "127.0.0.1", Port: 9000, RateLimit: 5, RateBurst: 10}
		server, err := NewServer(svc, logging.NewNop(), cfg)
		require.NoError(t, err)
		assert.Equal(t, cfg, server.config)
		assert.NotNil(t, server.limiter)
		assert.Equal(t, "127.0.0.1:9000", server.Addr())
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(svc, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8080, server.config.Port)
		assert.Nil(t, server.limiter)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(svc, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "review service cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := server.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestHandleMetrics(t *testing.T) {
	server := setupTestServer(t, nil)
	server.create(t)

	rec := server.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "apreview_review_active_sessions")
}

func TestHandleQuestionnaire(t *testing.T) {
	server := setupTestServer(t, nil)

	rec := server.do(t, http.MethodGet, "/api/v1/questionnaire", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[review.Questionnaire](t, rec)
	assert.Equal(t, answers.HeaderColumns(), q.Columns[:5])
	assert.Contains(t, q.Columns, "PSLO28 Quality 5")
	assert.Len(t, q.Families, 2)
}

func TestSessionLifecycle(t *testing.T) {
	server := setupTestServer(t, nil)
	view := server.create(t)
	base := "/api/v1/sessions/" + view.SessionID

	rec := server.do(t, http.MethodPatch, base+"/answers", answersBody(
		"reviewer_name", "Ada Lovelace",
		"college_name", "Engineering",
		"program_name", "BS Computing",
		"more_pslo_2", "Yes",
		"yearly_assessment_complete", "No",
		"missing_items", []string{"Timeline: Data Collection"},
	))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decode[review.View](t, rec)
	for _, fam := range view.Families {
		if fam.ID == "pslo_quality" {
			assert.Equal(t, 3, fam.Count)
		}
	}

	rec = server.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, view.SessionID, decode[review.View](t, rec).SessionID)

	rec = server.do(t, http.MethodGet, base+"/submission.xlsx", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = server.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode[review.Receipt](t, rec)
	assert.True(t, receipt.Recorded)
	assert.True(t, receipt.Delivered)
	assert.Equal(t, 1, server.recorder.rows)

	rec = server.do(t, http.MethodGet, base+"/submission.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sink.WorkbookContentType, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), receipt.SubmissionID)
	assert.NotZero(t, rec.Body.Len())

	rec = server.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = server.do(t, http.MethodPatch, base+"/answers", answersBody("estimated_duration", "20"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = server.do(t, http.MethodPost, base+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, server.recorder.rows)

	rec = server.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = server.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApplyAnswersErrors(t *testing.T) {
	server := setupTestServer(t, nil)
	view := server.create(t)
	base := "/api/v1/sessions/" + view.SessionID

	t.Run("unknown field", func(t *testing.T) {
		rec := server.do(t, http.MethodPatch, base+"/answers", answersBody("shoe_size", "9"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "shoe_size", decode[ErrorResponse](t, rec).Field)
	})

	t.Run("invalid choice", func(t *testing.T) {
		rec := server.do(t, http.MethodPatch, base+"/answers", answersBody("cm_schedule", "Perhaps"))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "cm_schedule", decode[ErrorResponse](t, rec).Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, base+"/answers", strings.NewReader(`{"answers": 7}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		server.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		rec := server.do(t, http.MethodPatch, "/api/v1/sessions/nope/answers", answersBody("cm_schedule", "Yes"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid session id", func(t *testing.T) {
		rec := server.do(t, http.MethodGet, "/api/v1/sessions/bad.id", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSubmitMissingIdentity(t *testing.T) {
	server := setupTestServer(t, nil)
	view := server.create(t)
	base := "/api/v1/sessions/" + view.SessionID

	rec := server.do(t, http.MethodPatch, base+"/answers", answersBody(
		"reviewer_name", "Ada Lovelace",
		"college_name", "Engineering",
	))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = server.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []string{answers.ColumnProgramName}, decode[ErrorResponse](t, rec).Fields)
	assert.Zero(t, server.recorder.rows)
	assert.Zero(t, server.transmitter.calls)
}

func TestSubmitDeliveryFailure(t *testing.T) {
	server := setupTestServer(t, nil)
	server.transmitter.status = http.StatusInternalServerError
	view := server.create(t)
	base := "/api/v1/sessions/" + view.SessionID

	rec := server.do(t, http.MethodPatch, base+"/answers", answersBody(
		"reviewer_name", "Ada Lovelace",
		"college_name", "Engineering",
		"program_name", "BS Computing",
	))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = server.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decode[DeliveryFailedResponse](t, rec)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, resp.Error)
	require.NotNil(t, resp.Receipt)
	assert.True(t, resp.Receipt.Recorded)
	assert.False(t, resp.Receipt.Delivered)

	server.transmitter.mu.Lock()
	server.transmitter.status = http.StatusAccepted
	server.transmitter.mu.Unlock()

	rec = server.do(t, http.MethodPost, base+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode[review.Receipt](t, rec)
	assert.True(t, receipt.Delivered)
	assert.Equal(t, http.StatusAccepted, receipt.StatusCode)
	assert.Equal(t, resp.Receipt.SubmissionID, receipt.SubmissionID)
	assert.Equal(t, 1, server.recorder.rows)
	assert.Equal(t, 2, server.transmitter.calls)
}

func TestSubmitRecordFailure(t *testing.T) {
	server := setupTestServer(t, nil)
	server.recorder.err = errors.New("read-only file system")
	view := server.create(t)
	base := "/api/v1/sessions/" + view.SessionID

	rec := server.do(t, http.MethodPatch, base+"/answers", answersBody(
		"reviewer_name", "Ada Lovelace",
		"college_name", "Engineering",
		"program_name", "BS Computing",
	))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = server.do(t, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "read-only")
	assert.Zero(t, server.transmitter.calls)
}

func TestRateLimit(t *testing.T) {
	server := setupTestServer(t, &Config{Host: "localhost", Port: 8080, RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		rec := server.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec := server.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	other := httptest.NewRecorder()
	server.echo.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestBodyLimit(t *testing.T) {
	server := setupTestServer(t, &Config{Host: "localhost", Port: 8080, BodyLimit: "1K"})
	view := server.create(t)

	big := answersBody("feedback_pslo1", strings.Repeat("x", 4096))
	rec := server.do(t, http.MethodPatch, "/api/v1/sessions/"+view.SessionID+"/answers", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
