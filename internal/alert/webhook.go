package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSink posts messages to an HTTP webhook (Discord-compatible).
type WebhookSink struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSink creates a webhook sink with a bounded request timeout.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

// Send posts the message as JSON. Non-2xx responses are errors.
func (s *WebhookSink) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
