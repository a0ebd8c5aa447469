package http

import (
	"github.com/fyrsmithlabs/apreview/internal/answers"
	"github.com/fyrsmithlabs/apreview/internal/review"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// AnswersRequest is the request body for PATCH /api/v1/sessions/:id/answers.
// Values are a string for text and single choice questions and a list of
// strings for multi choice questions. An empty value clears the answer.
type AnswersRequest struct {
	Answers map[string]answers.Value `json:"answers"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
	// Field names the rejected widget ID.
	Field string `json:"field,omitempty"`
	// Fields lists blank required columns.
	Fields []string `json:"fields,omitempty"`
}

// DeliveryFailedResponse is returned with 502 when the webhook did not
// accept a recorded submission.
type DeliveryFailedResponse struct {
	Error      string          `json:"error"`
	StatusCode int             `json:"status_code,omitempty"`
	Receipt    *review.Receipt `json:"receipt"`
}
