// Package branching decides how many instances of each repeatable question
// block are visible, growing a family by one instance when the reviewer
// answers "another?" affirmatively on its last instance.
package branching

import (
	"fmt"
)

// DefaultAffirmative is the answer that requests another instance.
const DefaultAffirmative = "Yes"

// Lookup returns the current answer for a widget ID.
type Lookup func(id string) (string, bool)

// Counts maps family ID to the number of visible instances. It is the
// session-owned state the controller reads and advances.
type Counts map[string]int

// Family is one repeatable block family.
type Family struct {
	ID string
	// Floor is the number of instances always shown.
	Floor int
	// Ceiling is the hard upper bound on instances.
	Ceiling int
	// Another returns the widget ID of the "is there another?" question for
	// instance n. It only exists for n >= Floor.
	Another func(n int) string
	// Affirmative overrides DefaultAffirmative when set.
	Affirmative string
}

func (f Family) affirmative() string {
	if f.Affirmative != "" {
		return f.Affirmative
	}
	return DefaultAffirmative
}

// Growth records one transition.
type Growth struct {
	Family string
	From   int
	To     int
}

// Controller evaluates growth transitions for a fixed set of families.
type Controller struct {
	families []Family
}

// NewController validates the families and returns a controller.
func NewController(families ...Family) (*Controller, error) {
	seen := make(map[string]bool, len(families))
	for _, f := range families {
		if f.ID == "" {
			return nil, fmt.Errorf("family id is required")
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("family %q declared twice", f.ID)
		}
		seen[f.ID] = true
		if f.Floor < 1 {
			return nil, fmt.Errorf("family %q: floor must be >= 1, got %d", f.ID, f.Floor)
		}
		if f.Ceiling < f.Floor {
			return nil, fmt.Errorf("family %q: ceiling %d below floor %d", f.ID, f.Ceiling, f.Floor)
		}
		if f.Another == nil {
			return nil, fmt.Errorf("family %q: another-question id is required", f.ID)
		}
	}
	cp := make([]Family, len(families))
	copy(cp, families)
	return &Controller{families: cp}, nil
}

// Families returns the controlled families in declaration order.
func (c *Controller) Families() []Family {
	cp := make([]Family, len(c.families))
	copy(cp, c.families)
	return cp
}

// Family returns the family with the given ID.
func (c *Controller) Family(id string) (Family, bool) {
	for _, f := range c.families {
		if f.ID == id {
			return f, true
		}
	}
	return Family{}, false
}

// Init seeds every family at its floor. Counters already above the floor are
// left untouched, so Init is safe on a restored session.
func (c *Controller) Init(counts Counts) {
	for _, f := range c.families {
		if counts[f.ID] < f.Floor {
			counts[f.ID] = f.Floor
		}
	}
}

// Evaluate applies at most one transition per family and reports what grew.
//
// A family grows when its last instance's "another?" answer is affirmative
// and the family is below its ceiling. Answers on earlier instances are
// stale and ignored, which makes repeated calls with unchanged answers a
// no-op: the freshly added instance has no answer yet.
func (c *Controller) Evaluate(counts Counts, lookup Lookup) []Growth {
	var grown []Growth
	for _, f := range c.families {
		n := counts[f.ID]
		if n < f.Floor {
			n = f.Floor
			counts[f.ID] = n
		}
		if n >= f.Ceiling {
			continue
		}
		answer, ok := lookup(f.Another(n))
		if !ok || answer != f.affirmative() {
			continue
		}
		counts[f.ID] = n + 1
		grown = append(grown, Growth{Family: f.ID, From: n, To: n + 1})
	}
	return grown
}

// AtCeiling reports whether the family can no longer grow.
func (c *Controller) AtCeiling(counts Counts, id string) bool {
	f, ok := c.Family(id)
	if !ok {
		return true
	}
	return counts[id] >= f.Ceiling
}
