package answers

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Set is an insertion-ordered mapping from field identifier to value.
//
// The zero value is ready to use. Set is not safe for concurrent mutation.
type Set struct {
	keys   []string
	values map[string]Value
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{values: make(map[string]Value)}
}

// Put inserts or replaces a value. Replacing keeps the original position.
func (s *Set) Put(key string, v Value) {
	if s.values == nil {
		s.values = make(map[string]Value)
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = v
}

// Get returns the value stored under key.
func (s *Set) Get(key string) (Value, bool) {
	if s == nil || s.values == nil {
		return Value{}, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is present.
func (s *Set) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Len returns the number of keys.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys returns the keys in insertion order.
func (s *Set) Keys() []string {
	if s == nil {
		return nil
	}
	cp := make([]string, len(s.keys))
	copy(cp, s.keys)
	return cp
}

// Each calls fn for every entry in insertion order.
func (s *Set) Each(fn func(key string, v Value)) {
	if s == nil {
		return
	}
	for _, k := range s.keys {
		fn(k, s.values[k])
	}
}

// Clone returns a deep copy.
func (s *Set) Clone() *Set {
	out := NewSet()
	s.Each(func(k string, v Value) {
		out.Put(k, v)
	})
	return out
}

// Strings flattens every value to its cell text, in insertion order.
func (s *Set) Strings() []string {
	out := make([]string, 0, s.Len())
	s.Each(func(_ string, v Value) {
		out = append(out, v.String())
	})
	return out
}

// MarshalJSON writes a JSON object whose members follow insertion order.
func (s *Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping member order.
func (s *Set) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("answer set must be a JSON object")
	}
	*s = Set{values: make(map[string]Value)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("answer set key must be a string")
		}
		var v Value
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("decoding %q: %w", key, err)
		}
		s.Put(key, v)
	}
	_, err = dec.Token()
	return err
}
