package review

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadySubmitted indicates the session is sealed by its submission.
	ErrAlreadySubmitted = errors.New("session already submitted")

	// ErrNotSubmitted indicates an operation that needs a submission.
	ErrNotSubmitted = errors.New("session has not been submitted")

	// ErrAlreadyDelivered indicates the webhook already accepted the row.
	ErrAlreadyDelivered = errors.New("submission already delivered")

	// ErrUnknownField indicates an answer for a widget the form does not
	// show.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidAnswer indicates a value outside the question's domain.
	ErrInvalidAnswer = errors.New("invalid answer")

	// ErrRecord indicates the tabular sink rejected the row.
	ErrRecord = errors.New("recording submission failed")

	// ErrDelivery indicates the webhook did not accept the row.
	ErrDelivery = errors.New("delivering submission failed")
)

// FieldError reports a rejected answer.
type FieldError struct {
	Field  string
	Reason string
	err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.err, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.err
}

func unknownField(id, reason string) error {
	return &FieldError{Field: id, Reason: reason, err: ErrUnknownField}
}

func invalidAnswer(id, reason string) error {
	return &FieldError{Field: id, Reason: reason, err: ErrInvalidAnswer}
}
