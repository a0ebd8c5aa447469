package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fyrsmithlabs/apreview/internal/answers"
)

const maxErrorBody = 512

// Webhook posts submission rows as JSON objects, one attempt per call.
type Webhook struct {
	url    string
	client *http.Client
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(w *Webhook) { w.client = c }
}

// NewWebhook returns a webhook sink for url. timeout bounds each attempt.
func NewWebhook(url string, timeout time.Duration, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Transmit posts row and returns the response status. Only 200 and 202
// count as delivered; any other status is a *StatusError.
func (w *Webhook) Transmit(ctx context.Context, row *answers.Set) (int, error) {
	body, err := row.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("%w: encoding row: %v", ErrTransmit, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: building request", ErrTransmit)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "apreview")

	resp, err := w.client.Do(req)
	if err != nil {
		// url.Error embeds the target URL; keep only the cause.
		return 0, fmt.Errorf("%w: %w", ErrTransmit, unwrapURLError(err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
