package questionnaire

import (
	"github.com/fyrsmithlabs/apreview/internal/answers"
	"github.com/fyrsmithlabs/apreview/internal/branching"
)

// instantiate resolves part pi for block index n. The another question is
// appended for instances at or past the floor.
func (d *Definition) instantiate(pi, n int) []Field {
	p := &d.Parts[pi]
	fields := make([]Field, 0, len(p.Questions)+1)
	for _, q := range p.Questions {
		fields = append(fields, d.field(q, n))
	}
	if p.Repeat != nil && n >= p.Repeat.Floor {
		f := d.field(p.Repeat.Another, n)
		f.Another = true
		fields = append(fields, f)
	}
	return fields
}

func (d *Definition) field(q Question, n int) Field {
	f := Field{
		ID:       substitute(q.ID, n),
		Column:   substitute(q.Column, n),
		Prompt:   substitute(q.Prompt, n),
		Help:     substitute(q.Help, n),
		Kind:     q.Kind,
		Required: q.Required,
		Identity: q.Identity,
		Default:  q.Default,
	}
	if q.Kind.hasChoices() {
		src := d.Choices[q.Choices]
		f.Choices = make([]string, len(src))
		copy(f.Choices, src)
	}
	if q.ShowIf != nil {
		f.ShowIf = &Condition{
			Question: substitute(q.ShowIf.Question, n),
			Equals:   q.ShowIf.Equals,
		}
	}
	return f
}

// Instance returns the fields of one block of the part with the given ID.
func (d *Definition) Instance(partID string, n int) ([]Field, bool) {
	for pi := range d.Parts {
		p := &d.Parts[pi]
		if p.ID != partID {
			continue
		}
		if p.Repeat == nil {
			if n != 0 {
				return nil, false
			}
		} else if n < 1 || n > p.Repeat.Ceiling {
			return nil, false
		}
		return d.instantiate(pi, n), true
	}
	return nil, false
}

// Blocks returns every visible block in questionnaire order for the given
// family counts. Repeating parts missing from counts render at their floor.
func (d *Definition) Blocks(counts branching.Counts) []Block {
	var blocks []Block
	for pi := range d.Parts {
		p := &d.Parts[pi]
		count := 0
		if p.Repeat != nil {
			count = counts[p.ID]
			if count < p.Repeat.Floor {
				count = p.Repeat.Floor
			}
			if count > p.Repeat.Ceiling {
				count = p.Repeat.Ceiling
			}
		}
		for _, n := range p.instances(count) {
			heading := p.Title
			if p.Repeat != nil {
				heading = substitute(p.Repeat.Heading, n)
			}
			blocks = append(blocks, Block{
				PartID:  p.ID,
				Index:   n,
				Heading: heading,
				Fields:  d.instantiate(pi, n),
			})
		}
	}
	return blocks
}

// Families returns one growth family per repeating part.
func (d *Definition) Families() []branching.Family {
	var out []branching.Family
	for pi := range d.Parts {
		p := &d.Parts[pi]
		if p.Repeat == nil {
			continue
		}
		another := p.Repeat.Another.ID
		out = append(out, branching.Family{
			ID:          p.ID,
			Floor:       p.Repeat.Floor,
			Ceiling:     p.Repeat.Ceiling,
			Another:     func(n int) string { return substitute(another, n) },
			Affirmative: p.Repeat.Affirmative,
		})
	}
	return out
}

// Known reports whether id is a widget the definition can render at the
// growth ceiling.
func (d *Definition) Known(id string) bool {
	_, ok := d.fields[id]
	return ok
}

// Rendered reports whether id belongs to a block that is currently rendered
// for the given counts.
func (d *Definition) Rendered(id string, counts branching.Counts) bool {
	ref, ok := d.fields[id]
	if !ok {
		return false
	}
	p := &d.Parts[ref.part]
	if p.Repeat == nil {
		return true
	}
	count := counts[p.ID]
	if count < p.Repeat.Floor {
		count = p.Repeat.Floor
	}
	return ref.index <= count
}

// Columns returns the answer columns every block can produce at the growth
// ceiling, in questionnaire order. Identity questions are excluded because
// they lead every row.
func (d *Definition) Columns() []string {
	var cols []string
	for pi := range d.Parts {
		p := &d.Parts[pi]
		for _, n := range p.instances(p.ceiling()) {
			for _, f := range d.instantiate(pi, n) {
				if f.Identity == "" {
					cols = append(cols, f.Column)
				}
			}
		}
	}
	return cols
}

// Schema returns the full spreadsheet header: the leading submission
// columns followed by Columns.
func (d *Definition) Schema() []string {
	return append(answers.HeaderColumns(), d.Columns()...)
}

// Reviewer extracts the identity answers.
func (d *Definition) Reviewer(lookup Lookup) answers.Reviewer {
	var r answers.Reviewer
	for pi := range d.Parts {
		p := &d.Parts[pi]
		if p.Repeat != nil {
			continue
		}
		for _, q := range p.Questions {
			v, _ := lookup(q.ID)
			switch q.Identity {
			case IdentityName:
				r.Name = v.String()
			case IdentityCollege:
				r.College = v.String()
			case IdentityProgram:
				r.Program = v.String()
			}
		}
	}
	return r
}

// Accumulate records every non-identity field of blocks, in order, into acc.
func Accumulate(acc *answers.Accumulator, blocks []Block, lookup Lookup) error {
	for _, b := range blocks {
		for _, f := range b.Fields {
			if f.Identity != "" {
				continue
			}
			if err := acc.Record(b.Index, f.Column, f.Resolve(lookup)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Field returns the instantiated field for a widget ID.
func (d *Definition) Field(id string) (Field, bool) {
	ref, ok := d.fields[id]
	if !ok {
		return Field{}, false
	}
	for _, f := range d.instantiate(ref.part, ref.index) {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}
