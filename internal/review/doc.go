// Package review runs peer review form sessions.
//
// Every interaction is one synchronous pass over an explicit session state:
// apply the reviewer's answers, evaluate block growth, then render the view.
// Submitting builds the ordered answer set, appends it to the tabular sink
// and posts it once to the webhook. A failed delivery keeps the submission
// on the session so it can be retried without recording a second row.
//
// Operations on one session are serialized; different sessions proceed in
// parallel.
package review
