package answers

import (
	"time"

	"github.com/google/uuid"
)

// Accumulator merges per-block answers into one flat ordered set, in the
// order blocks appear in the questionnaire. It performs no I/O.
//
// One accumulator serves one submission pass.
type Accumulator struct {
	set       *Set
	blockOf   map[string]int
	finalized bool
	newID     func() string
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		set:     NewSet(),
		blockOf: make(map[string]int),
		newID:   uuid.NewString,
	}
}

// Record stores the answer for field in block. Block 0 is the fixed,
// non-repeating part of the questionnaire.
func (a *Accumulator) Record(block int, field string, v Value) error {
	if a.finalized {
		return ErrFinalized
	}
	if prev, ok := a.blockOf[field]; ok {
		return &DuplicateFieldError{Field: field, Block: block, PreviousBlock: prev}
	}
	a.blockOf[field] = block
	a.set.Put(field, v)
	return nil
}

// Len returns how many fields have been recorded.
func (a *Accumulator) Len() int {
	return a.set.Len()
}

// Finalize returns the complete submission. It fails with
// *MissingRequiredFieldError when any identity field is blank, in which case
// the accumulator stays open.
func (a *Accumulator) Finalize(reviewer Reviewer, ts time.Time) (*Submission, error) {
	if a.finalized {
		return nil, ErrFinalized
	}
	if missing := reviewer.Missing(); len(missing) > 0 {
		return nil, &MissingRequiredFieldError{Fields: missing}
	}
	a.finalized = true
	return &Submission{
		ID:        a.newID(),
		Reviewer:  reviewer,
		Timestamp: ts,
		Answers:   a.set.Clone(),
	}, nil
}
