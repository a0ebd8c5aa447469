package answers

import (
	"strings"
	"time"
)

// TimestampLayout is how submission timestamps appear in rows.
const TimestampLayout = "2006-01-02T15:04:05"

// Row column labels that precede the questionnaire answers.
const (
	ColumnSubmissionID = "Submission ID"
	ColumnReviewerName = "Reviewer Name"
	ColumnCollegeName  = "College Name"
	ColumnProgramName  = "Program Name"
	ColumnTimestamp    = "Timestamp"
)

// HeaderColumns returns the fixed leading columns of every row.
func HeaderColumns() []string {
	return []string{
		ColumnSubmissionID,
		ColumnReviewerName,
		ColumnCollegeName,
		ColumnProgramName,
		ColumnTimestamp,
	}
}

// Reviewer identifies who reviewed which program.
type Reviewer struct {
	Name    string `json:"name"`
	College string `json:"college"`
	Program string `json:"program"`
}

// Missing returns the labels of blank identity fields, in form order.
func (r Reviewer) Missing() []string {
	var missing []string
	if strings.TrimSpace(r.Name) == "" {
		missing = append(missing, ColumnReviewerName)
	}
	if strings.TrimSpace(r.College) == "" {
		missing = append(missing, ColumnCollegeName)
	}
	if strings.TrimSpace(r.Program) == "" {
		missing = append(missing, ColumnProgramName)
	}
	return missing
}

// Submission is a finalized answer set. It is never mutated after creation.
type Submission struct {
	ID        string    `json:"id"`
	Reviewer  Reviewer  `json:"reviewer"`
	Timestamp time.Time `json:"timestamp"`
	Answers   *Set      `json:"answers"`
}

// Row returns the submission as one ordered spreadsheet row: identity
// columns and timestamp first, then every answer in questionnaire order.
func (s *Submission) Row() *Set {
	row := NewSet()
	row.Put(ColumnSubmissionID, Text(s.ID))
	row.Put(ColumnReviewerName, Text(strings.TrimSpace(s.Reviewer.Name)))
	row.Put(ColumnCollegeName, Text(strings.TrimSpace(s.Reviewer.College)))
	row.Put(ColumnProgramName, Text(strings.TrimSpace(s.Reviewer.Program)))
	row.Put(ColumnTimestamp, Text(s.Timestamp.Format(TimestampLayout)))
	s.Answers.Each(func(k string, v Value) {
		row.Put(k, v)
	})
	return row
}
