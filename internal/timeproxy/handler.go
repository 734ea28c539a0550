// Package timeproxy relays a fixed upstream time lookup unchanged.
package timeproxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"formrelay/internal/models"
)

// DefaultUpstreamURL is the time lookup relayed when none is configured.
const DefaultUpstreamURL = "https://worldtimeapi.org/api/timezone/America/Chicago"

const maxDocumentBytes = 1 << 20

var errInvalidDocument = errors.New("upstream returned invalid JSON")

// Proxy fetches the upstream document on every request.
type Proxy struct {
	upstream  string
	userAgent string
	client    *http.Client
}

// New creates a proxy for upstream. A zero timeout means no timeout.
func New(upstream string, timeout time.Duration, userAgent string) *Proxy {
	if upstream == "" {
		upstream = DefaultUpstreamURL
	}
	return &Proxy{
		upstream:  upstream,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

// Fetch returns the upstream JSON document.
func (p *Proxy) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.upstream, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upstream time: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream time: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w (status %d)", errInvalidDocument, resp.StatusCode)
	}
	return body, nil
}

// ServeHTTP answers GET with the upstream document. Method routing and CORS
// are handled by the router.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := p.Fetch(r.Context())
	if err != nil {
		slog.Error("Error fetching time", "upstream", p.upstream, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(models.NewErrorResponse(models.MessageTimeFetchFailed))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
