// Package answers accumulates questionnaire answers into ordered,
// duplicate-checked answer sets and finalizes them into submissions.
package answers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ListSeparator joins multi-select values when a value is flattened into a
// single spreadsheet cell.
const ListSeparator = ", "

// Value is one answer: free text, a single choice, or an ordered list of
// choices from a multi-select question.
type Value struct {
	text  string
	items []string
	multi bool
}

// Text returns a single-string value.
func Text(s string) Value {
	return Value{text: s}
}

// Items returns a multi-select value. The slice is copied.
func Items(items ...string) Value {
	cp := make([]string, len(items))
	copy(cp, items)
	return Value{items: cp, multi: true}
}

// IsMulti reports whether the value came from a multi-select question.
func (v Value) IsMulti() bool {
	return v.multi
}

// IsZero reports whether the value is unanswered.
func (v Value) IsZero() bool {
	if v.multi {
		return len(v.items) == 0
	}
	return v.text == ""
}

// List returns a copy of the selected items. Single values yield a one-element
// list, or nil when empty.
func (v Value) List() []string {
	if !v.multi {
		if v.text == "" {
			return nil
		}
		return []string{v.text}
	}
	cp := make([]string, len(v.items))
	copy(cp, v.items)
	return cp
}

// String flattens the value into one cell.
func (v Value) String() string {
	if v.multi {
		return strings.Join(v.items, ListSeparator)
	}
	return v.text
}

// Equal reports whether two values carry the same answer.
func (v Value) Equal(o Value) bool {
	if v.multi != o.multi {
		return false
	}
	if !v.multi {
		return v.text == o.text
	}
	if len(v.items) != len(o.items) {
		return false
	}
	for i := range v.items {
		if v.items[i] != o.items[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes multi-select values as arrays and everything else as a
// string.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.multi {
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON accepts a string, an array of strings, or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*v = Value{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []string
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("answer list must contain only strings: %w", err)
		}
		*v = Items(items...)
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return fmt.Errorf("answer must be a string or a list of strings: %w", err)
	}
	*v = Text(s)
	return nil
}
