package questionnaire

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/apreview/internal/answers"
	"github.com/fyrsmithlabs/apreview/internal/branching"
)

//go:embed forms/ap_peer_review.yaml
var defaultForm []byte

// ErrInvalidDefinition wraps every definition validation failure.
var ErrInvalidDefinition = errors.New("invalid questionnaire definition")

// Definition is a loaded, validated questionnaire.
type Definition struct {
	Title   string              `yaml:"title" json:"title"`
	Choices map[string][]string `yaml:"choices" json:"choices"`
	Parts   []Part              `yaml:"parts" json:"parts"`

	// fields indexes every widget ID the definition can produce at the
	// growth ceiling.
	fields map[string]fieldRef
}

type fieldRef struct {
	part  int
	index int
}

// Default returns the built-in assessment plan peer review questionnaire.
func Default() (*Definition, error) {
	return Parse(defaultForm)
}

// Load reads and validates a YAML definition.
func Load(r io.Reader) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading questionnaire: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML definition.
func Parse(data []byte) (*Definition, error) {
	var d Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding questionnaire: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// WithCeiling returns a copy whose repeating parts all use ceiling.
func (d *Definition) WithCeiling(ceiling int) (*Definition, error) {
	cp := &Definition{
		Title:   d.Title,
		Choices: d.Choices,
		Parts:   make([]Part, len(d.Parts)),
	}
	copy(cp.Parts, d.Parts)
	for i := range cp.Parts {
		if cp.Parts[i].Repeat == nil {
			continue
		}
		r := *cp.Parts[i].Repeat
		r.Ceiling = ceiling
		cp.Parts[i].Repeat = &r
	}
	if err := cp.validate(); err != nil {
		return nil, err
	}
	return cp, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
}

func (d *Definition) validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return invalid("title is required")
	}
	if len(d.Parts) == 0 {
		return invalid("at least one part is required")
	}

	reserved := make(map[string]bool)
	for _, c := range answers.HeaderColumns() {
		reserved[c] = true
	}

	partIDs := make(map[string]bool)
	identities := make(map[string]string)
	for pi := range d.Parts {
		p := &d.Parts[pi]
		if p.ID == "" {
			return invalid("part %d: id is required", pi)
		}
		if partIDs[p.ID] {
			return invalid("part %q declared twice", p.ID)
		}
		partIDs[p.ID] = true
		if len(p.Questions) == 0 {
			return invalid("part %q has no questions", p.ID)
		}

		local := make(map[string]bool)
		for _, q := range p.allQuestions() {
			local[q.ID] = true
		}
		for _, q := range p.allQuestions() {
			if err := d.validateQuestion(p, q, local); err != nil {
				return err
			}
			if q.Identity != "" {
				if prev, ok := identities[q.Identity]; ok {
					return invalid("identity %q bound twice (%s, %s)", q.Identity, prev, q.ID)
				}
				identities[q.Identity] = q.ID
			} else if reserved[q.Column] {
				return invalid("question %q uses reserved column %q", q.ID, q.Column)
			}
		}

		if p.Repeat != nil {
			r := p.Repeat
			if r.Floor < 1 {
				return invalid("part %q: floor must be >= 1", p.ID)
			}
			if r.Ceiling < r.Floor {
				return invalid("part %q: ceiling %d below floor %d", p.ID, r.Ceiling, r.Floor)
			}
			if r.Another.Kind != KindSingle {
				return invalid("part %q: another question must be single choice", p.ID)
			}
			affirmative := r.Affirmative
			if affirmative == "" {
				affirmative = branching.DefaultAffirmative
			}
			if !contains(d.Choices[r.Another.Choices], affirmative) {
				return invalid("part %q: another question cannot be answered %q", p.ID, affirmative)
			}
		}
	}

	for _, role := range []string{IdentityName, IdentityCollege, IdentityProgram} {
		if _, ok := identities[role]; !ok {
			return invalid("identity question %q is missing", role)
		}
	}

	return d.index()
}

func (d *Definition) validateQuestion(p *Part, q Question, local map[string]bool) error {
	if q.ID == "" || q.Column == "" || q.Prompt == "" {
		return invalid("part %q: question needs id, column and prompt (%q)", p.ID, q.ID)
	}
	if !q.Kind.valid() {
		return invalid("question %q: unknown kind %q", q.ID, q.Kind)
	}
	if q.Kind.hasChoices() {
		if len(d.Choices[q.Choices]) == 0 {
			return invalid("question %q: unknown choice set %q", q.ID, q.Choices)
		}
	} else if q.Choices != "" {
		return invalid("question %q: %s questions take no choices", q.ID, q.Kind)
	}
	switch q.Identity {
	case "":
	case IdentityName, IdentityCollege, IdentityProgram:
		if p.Repeating() {
			return invalid("question %q: identity questions cannot repeat", q.ID)
		}
		if q.Kind != KindText || !q.Required {
			return invalid("question %q: identity questions must be required text", q.ID)
		}
	default:
		return invalid("question %q: unknown identity %q", q.ID, q.Identity)
	}

	parameterized := strings.Contains(q.ID, IndexPlaceholder) && strings.Contains(q.Column, IndexPlaceholder)
	if p.Repeating() && !parameterized {
		return invalid("question %q in repeating part %q must use %s in id and column", q.ID, p.ID, IndexPlaceholder)
	}
	if !p.Repeating() && (strings.Contains(q.ID, IndexPlaceholder) || strings.Contains(q.Column, IndexPlaceholder)) {
		return invalid("question %q in fixed part %q cannot use %s", q.ID, p.ID, IndexPlaceholder)
	}

	if q.ShowIf != nil {
		if !local[q.ShowIf.Question] || q.ShowIf.Question == q.ID {
			return invalid("question %q: show_if must reference another question of part %q", q.ID, p.ID)
		}
	}
	return nil
}

// index instantiates every block at the ceiling and rejects any colliding
// widget ID or column.
func (d *Definition) index() error {
	d.fields = make(map[string]fieldRef)
	columns := make(map[string]string)
	for pi := range d.Parts {
		p := &d.Parts[pi]
		for _, n := range p.instances(p.ceiling()) {
			for _, f := range d.instantiate(pi, n) {
				if _, dup := d.fields[f.ID]; dup {
					return invalid("widget id %q produced twice", f.ID)
				}
				if prev, dup := columns[f.Column]; dup {
					return invalid("column %q produced by %q and %q", f.Column, prev, f.ID)
				}
				d.fields[f.ID] = fieldRef{part: pi, index: n}
				columns[f.Column] = f.ID
			}
		}
	}
	return nil
}

// allQuestions returns the part's questions plus its another question.
func (p *Part) allQuestions() []Question {
	if p.Repeat == nil {
		return p.Questions
	}
	qs := make([]Question, 0, len(p.Questions)+1)
	qs = append(qs, p.Questions...)
	return append(qs, p.Repeat.Another)
}

func (p *Part) ceiling() int {
	if p.Repeat == nil {
		return 0
	}
	return p.Repeat.Ceiling
}

// instances returns the block indexes rendered for count.
func (p *Part) instances(count int) []int {
	if p.Repeat == nil {
		return []int{0}
	}
	out := make([]int, 0, count)
	for n := 1; n <= count; n++ {
		out = append(out, n)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
