// Package sink delivers finalized submissions.
//
// A submission is first appended to a CSV file, the durable record, and
// then posted once to a webhook. Neither sink retries. A Workbook renders a
// single submission as an Excel file for download.
package sink
