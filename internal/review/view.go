package review

import (
	"time"

	"github.com/fyrsmithlabs/apreview/internal/answers"
	"github.com/fyrsmithlabs/apreview/internal/branching"
	"github.com/fyrsmithlabs/apreview/internal/questionnaire"
	"github.com/fyrsmithlabs/apreview/internal/session"
)

// View is everything a client needs to render the form for one session.
type View struct {
	SessionID string         `json:"session_id"`
	Title     string         `json:"title"`
	Families  []FamilyView   `json:"families"`
	Parts     []PartView     `json:"parts"`
	Submitted bool           `json:"submitted"`
	Receipt   *Receipt       `json:"receipt,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
	Grown     []GrowthRecord `json:"grown,omitempty"`
}

// FamilyView reports the growth state of one block family.
type FamilyView struct {
	ID        string `json:"id"`
	Count     int    `json:"count"`
	Floor     int    `json:"floor"`
	Ceiling   int    `json:"ceiling"`
	AtCeiling bool   `json:"at_ceiling"`
}

// PartView is one questionnaire part with its rendered blocks.
type PartView struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Blocks      []BlockView `json:"blocks"`
}

// BlockView is one rendered block. Fixed parts have Index 0.
type BlockView struct {
	Index     int            `json:"index"`
	Heading   string         `json:"heading"`
	Questions []QuestionView `json:"questions"`
}

// QuestionView is one visible question and its current answer.
type QuestionView struct {
	ID       string             `json:"id"`
	Prompt   string             `json:"prompt"`
	Help     string             `json:"help,omitempty"`
	Kind     questionnaire.Kind `json:"kind"`
	Choices  []string           `json:"choices,omitempty"`
	Required bool               `json:"required,omitempty"`
	Another  bool               `json:"another,omitempty"`
	Value    *answers.Value     `json:"value,omitempty"`
}

// GrowthRecord reports a family that grew during the last pass.
type GrowthRecord struct {
	Family string `json:"family"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

// Receipt describes a submission and where it went.
type Receipt struct {
	SubmissionID string    `json:"submission_id"`
	Timestamp    time.Time `json:"timestamp"`
	Recorded     bool      `json:"recorded"`
	Delivered    bool      `json:"delivered"`
	StatusCode   int       `json:"status_code,omitempty"`
	Attempts     int       `json:"attempts"`
	Error        string    `json:"error,omitempty"`
}

// Questionnaire summarizes the loaded definition.
type Questionnaire struct {
	Title    string        `json:"title"`
	Parts    []PartSummary `json:"parts"`
	Families []FamilyView  `json:"families"`
	Columns  []string      `json:"columns"`
}

// PartSummary names one part of the questionnaire.
type PartSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Repeating   bool   `json:"repeating"`
}

func receiptOf(s *session.Session) *Receipt {
	if s.Submission == nil {
		return nil
	}
	return &Receipt{
		SubmissionID: s.Submission.ID,
		Timestamp:    s.Submission.Timestamp,
		Recorded:     s.Delivery.Recorded,
		Delivered:    s.Delivery.Delivered,
		StatusCode:   s.Delivery.StatusCode,
		Attempts:     s.Delivery.Attempts,
		Error:        s.Delivery.LastError,
	}
}

func (svc *Service) families(counts branching.Counts) []FamilyView {
	fams := svc.controller.Families()
	out := make([]FamilyView, 0, len(fams))
	for _, f := range fams {
		n := counts[f.ID]
		if n < f.Floor {
			n = f.Floor
		}
		out = append(out, FamilyView{
			ID:        f.ID,
			Count:     n,
			Floor:     f.Floor,
			Ceiling:   f.Ceiling,
			AtCeiling: n >= f.Ceiling,
		})
	}
	return out
}

// render builds the view of s. Questions hidden by show_if are left out.
func (svc *Service) render(s *session.Session, grown []GrowthRecord) *View {
	v := &View{
		SessionID: s.ID,
		Title:     svc.def.Title,
		Families:  svc.families(s.Counts),
		Submitted: s.Submitted(),
		Receipt:   receiptOf(s),
		UpdatedAt: s.UpdatedAt,
		Grown:     grown,
	}

	byPart := make(map[string]int, len(svc.def.Parts))
	for _, p := range svc.def.Parts {
		byPart[p.ID] = len(v.Parts)
		v.Parts = append(v.Parts, PartView{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
		})
	}

	lookup := questionnaire.Lookup(s.Lookup)
	for _, b := range svc.def.Blocks(s.Counts) {
		bv := BlockView{Index: b.Index, Heading: b.Heading}
		for _, f := range b.Fields {
			if !f.Visible(lookup) {
				continue
			}
			qv := QuestionView{
				ID:       f.ID,
				Prompt:   f.Prompt,
				Help:     f.Help,
				Kind:     f.Kind,
				Choices:  f.Choices,
				Required: f.Required,
				Another:  f.Another,
			}
			if val, ok := s.Lookup(f.ID); ok {
				qv.Value = &val
			}
			bv.Questions = append(bv.Questions, qv)
		}
		pv := &v.Parts[byPart[b.PartID]]
		pv.Blocks = append(pv.Blocks, bv)
	}
	return v
}
