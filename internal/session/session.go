// Package session holds per-reviewer form state: growth counters, raw
// answers keyed by widget ID, and the retained submission.
//
// A Session is owned by exactly one reviewer. Stores hand out copies so a
// caller's mutations only become visible through Save.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/apreview/internal/answers"
	"github.com/fyrsmithlabs/apreview/internal/branching"
)

// Delivery tracks what happened to a retained submission.
type Delivery struct {
	// Recorded is set once the row has been appended to the tabular sink.
	Recorded bool `json:"recorded"`
	// Delivered is set once the webhook accepted the row.
	Delivered  bool      `json:"delivered"`
	Attempts   int       `json:"attempts"`
	StatusCode int       `json:"status_code,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	LastTry    time.Time `json:"last_try,omitempty"`
}

// Session is the explicit state object of one form session.
type Session struct {
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
	Counts    branching.Counts         `json:"counts"`
	Answers   map[string]answers.Value `json:"answers"`

	Submission *answers.Submission `json:"submission,omitempty"`
	Delivery   Delivery            `json:"delivery"`
}

// New returns an empty session stamped at now.
func New(now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Counts:    branching.Counts{},
		Answers:   make(map[string]answers.Value),
	}
}

// Lookup returns the raw answer for a widget ID.
func (s *Session) Lookup(id string) (answers.Value, bool) {
	v, ok := s.Answers[id]
	return v, ok
}

// TextLookup adapts Lookup for the branching controller.
func (s *Session) TextLookup(id string) (string, bool) {
	v, ok := s.Answers[id]
	if !ok || v.IsMulti() {
		return "", false
	}
	return v.String(), true
}

// Set records an answer. A zero value clears the answer.
func (s *Session) Set(id string, v answers.Value) {
	if v.IsZero() {
		delete(s.Answers, id)
		return
	}
	s.Answers[id] = v
}

// Submitted reports whether the session has produced its submission.
func (s *Session) Submitted() bool {
	return s.Submission != nil
}

// Recorded reports whether the submission's row reached the tabular sink.
func (s *Session) Recorded() bool {
	return s.Submission != nil && s.Delivery.Recorded
}

// Expired reports whether the session has been idle longer than ttl.
// A non-positive ttl never expires.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(s.UpdatedAt) > ttl
}

// Clone returns a deep copy. Submissions are immutable and shared.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Counts = make(branching.Counts, len(s.Counts))
	for k, v := range s.Counts {
		cp.Counts[k] = v
	}
	cp.Answers = make(map[string]answers.Value, len(s.Answers))
	for k, v := range s.Answers {
		cp.Answers[k] = v
	}
	return &cp
}
