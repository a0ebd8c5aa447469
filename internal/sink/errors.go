package sink

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaMismatch indicates the CSV header on disk, or a row, does not
	// match the questionnaire's column set.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrTransmit wraps every webhook failure.
	ErrTransmit = errors.New("webhook transmission failed")
)

// StatusError reports a webhook response other than 200 or 202.
type StatusError struct {
	StatusCode int
	// Body holds the start of the response body.
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook responded %d", e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrTransmit
}

// StatusCode returns the webhook status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
