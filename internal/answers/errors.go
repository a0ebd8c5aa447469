package answers

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateField marks a field identifier recorded twice in one pass.
	// It means block parameterization is broken and the pass must be aborted.
	ErrDuplicateField = errors.New("duplicate field")

	// ErrMissingRequiredField marks a blank reviewer identity field.
	ErrMissingRequiredField = errors.New("missing required field")

	// ErrFinalized is returned when recording into an accumulator that has
	// already produced its submission.
	ErrFinalized = errors.New("accumulator already finalized")
)

// DuplicateFieldError reports a field identifier collision.
type DuplicateFieldError struct {
	Field         string
	Block         int
	PreviousBlock int
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("duplicate field %q in block %d (first recorded in block %d)", e.Field, e.Block, e.PreviousBlock)
}

func (e *DuplicateFieldError) Unwrap() error { return ErrDuplicateField }

// MissingRequiredFieldError lists every required identity field left blank.
type MissingRequiredFieldError struct {
	Fields []string
}

func (e *MissingRequiredFieldError) Error() string {
	return "missing required field(s): " + strings.Join(e.Fields, ", ")
}

func (e *MissingRequiredFieldError) Unwrap() error { return ErrMissingRequiredField }
