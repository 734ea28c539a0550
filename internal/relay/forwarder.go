package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrDeliveryFailed is wrapped by every forwarding failure.
var ErrDeliveryFailed = errors.New("delivery failed")

// StatusError reports a non-2xx answer from the webhook.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// Forwarder delivers one payload downstream. The returned status code is 0
// when no response was received.
type Forwarder interface {
	Forward(ctx context.Context, payload []byte) (int, error)
}

// WebhookForwarder posts payloads verbatim to a fixed webhook URL.
type WebhookForwarder struct {
	url       string
	userAgent string
	client    *http.Client
}

// NewWebhookForwarder creates a forwarder. A zero timeout means no timeout.
func NewWebhookForwarder(url string, timeout time.Duration, userAgent string) *WebhookForwarder {
	return &WebhookForwarder{
		url:       url,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// Forward implements Forwarder. Any 2xx status is a success.
func (f *WebhookForwarder) Forward(ctx context.Context, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("%w: building request: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%w: %w", ErrDeliveryFailed, &StatusError{StatusCode: resp.StatusCode})
	}
	return resp.StatusCode, nil
}
