// Package questionnaire holds the static question block templates of the
// peer review form and instantiates them per block index.
//
// A definition is an ordered list of parts. A fixed part renders once; a
// repeating part renders one block per instance, with "{n}" in question IDs,
// columns, prompts and headings replaced by the 1-based instance index.
// Definitions are immutable once loaded.
package questionnaire

import (
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/apreview/internal/answers"
)

// IndexPlaceholder is replaced by the instance index in repeated blocks.
const IndexPlaceholder = "{n}"

// Kind is the answer domain of a question.
type Kind string

const (
	KindText     Kind = "text"
	KindTextArea Kind = "textarea"
	KindSingle   Kind = "single"
	KindMulti    Kind = "multi"
)

func (k Kind) valid() bool {
	switch k {
	case KindText, KindTextArea, KindSingle, KindMulti:
		return true
	}
	return false
}

func (k Kind) hasChoices() bool {
	return k == KindSingle || k == KindMulti
}

// Identity roles for the three required reviewer fields.
const (
	IdentityName    = "name"
	IdentityCollege = "college"
	IdentityProgram = "program"
)

// Condition shows a question only while another question in the same block
// holds a given answer.
type Condition struct {
	Question string `yaml:"question" json:"question"`
	Equals   string `yaml:"equals" json:"equals"`
}

// Question is one question template.
type Question struct {
	ID       string     `yaml:"id" json:"id"`
	Column   string     `yaml:"column" json:"column"`
	Prompt   string     `yaml:"prompt" json:"prompt"`
	Help     string     `yaml:"help,omitempty" json:"help,omitempty"`
	Kind     Kind       `yaml:"kind" json:"kind"`
	Choices  string     `yaml:"choices,omitempty" json:"choices,omitempty"`
	Required bool       `yaml:"required,omitempty" json:"required,omitempty"`
	Identity string     `yaml:"identity,omitempty" json:"identity,omitempty"`
	Default  string     `yaml:"default,omitempty" json:"default,omitempty"`
	ShowIf   *Condition `yaml:"show_if,omitempty" json:"show_if,omitempty"`
}

// Repeat turns a part into a growable block family.
type Repeat struct {
	Floor       int      `yaml:"floor" json:"floor"`
	Ceiling     int      `yaml:"ceiling" json:"ceiling"`
	Heading     string   `yaml:"heading" json:"heading"`
	Another     Question `yaml:"another" json:"another"`
	Affirmative string   `yaml:"affirmative,omitempty" json:"affirmative,omitempty"`
}

// Part is a titled section of the questionnaire.
type Part struct {
	ID          string     `yaml:"id" json:"id"`
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Repeat      *Repeat    `yaml:"repeat,omitempty" json:"repeat,omitempty"`
	Questions   []Question `yaml:"questions" json:"questions"`
}

// Repeating reports whether the part is a block family.
func (p *Part) Repeating() bool {
	return p.Repeat != nil
}

// Field is a question instantiated for one block.
type Field struct {
	ID       string     `json:"id"`
	Column   string     `json:"column"`
	Prompt   string     `json:"prompt"`
	Help     string     `json:"help,omitempty"`
	Kind     Kind       `json:"kind"`
	Choices  []string   `json:"choices,omitempty"`
	Required bool       `json:"required,omitempty"`
	Identity string     `json:"-"`
	Default  string     `json:"-"`
	ShowIf   *Condition `json:"-"`
	// Another marks the "is there another?" question of a repeated block.
	Another bool `json:"another,omitempty"`
}

// Lookup returns the current answer for a widget ID.
type Lookup func(id string) (answers.Value, bool)

// Visible reports whether the field is shown given the current answers.
func (f Field) Visible(lookup Lookup) bool {
	if f.ShowIf == nil {
		return true
	}
	v, ok := lookup(f.ShowIf.Question)
	return ok && !v.IsMulti() && v.String() == f.ShowIf.Equals
}

// Resolve returns the value this field contributes to an answer set:
// the answer when visible and answered, otherwise the default.
func (f Field) Resolve(lookup Lookup) answers.Value {
	if f.Visible(lookup) {
		if v, ok := lookup(f.ID); ok && !v.IsZero() {
			return v
		}
	}
	if f.Kind == KindMulti && f.Default == "" {
		return answers.Items()
	}
	return answers.Text(f.Default)
}

// Block is one rendered instance of a part. Fixed parts have Index 0.
type Block struct {
	PartID  string  `json:"part_id"`
	Index   int     `json:"index"`
	Heading string  `json:"heading"`
	Fields  []Field `json:"fields"`
}

func substitute(s string, n int) string {
	if n == 0 {
		return s
	}
	return strings.ReplaceAll(s, IndexPlaceholder, strconv.Itoa(n))
}
