package reputation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrLookupFailed is wrapped by every provider failure.
var ErrLookupFailed = errors.New("reputation lookup failed")

const maxLookupBytes = 64 << 10

type lookup struct {
	endpoint  string
	apiKey    string
	userAgent string
	client    *http.Client
}

// url expands the {ip} and {key} placeholders of the endpoint template.
func (l *lookup) url(address string) string {
	return strings.NewReplacer(
		"{ip}", url.PathEscape(address),
		"{key}", url.PathEscape(l.apiKey),
	).Replace(l.endpoint)
}

// fetch issues the GET and returns the parsed JSON object.
func (l *lookup) fetch(ctx context.Context, address string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url(address), nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: building request: %v", ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, fmt.Errorf("%w: provider returned status %d", ErrLookupFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: reading body: %v", ErrLookupFailed, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: response is not valid JSON", ErrLookupFailed)
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return gjson.Result{}, fmt.Errorf("%w: response is not a JSON object", ErrLookupFailed)
	}
	if err := providerError(doc); err != nil {
		return gjson.Result{}, err
	}
	return doc, nil
}

// providerError recognizes the in-band failure markers used by common
// providers: {"success": false} and {"status": "fail"}.
func providerError(doc gjson.Result) error {
	if s := doc.Get("success"); s.Type == gjson.False {
		return fmt.Errorf("%w: provider reported failure: %s", ErrLookupFailed, doc.Get("message").String())
	}
	if strings.EqualFold(doc.Get("status").String(), "fail") {
		return fmt.Errorf("%w: provider reported failure: %s", ErrLookupFailed, doc.Get("message").String())
	}
	return nil
}
