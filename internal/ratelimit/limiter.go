// Package ratelimit guards cheap pass-through endpoints with a per-caller
// token bucket. It is independent of the submission cooldown, which uses a
// fixed window per source instead of a refilling bucket.
package ratelimit

import (
	"net/http"
	"time"
)

// Limiter defines the rate limiting contract. Implementations must be safe for
// concurrent use.
type Limiter interface {
	// Allow reports whether a request identified by key may proceed, along
	// with the bucket state for response headers.
	Allow(key string) (allowed bool, info Info)

	// Close stops background goroutines and releases resources.
	Close()
}

// Info contains rate limit state for populating response headers.
type Info struct {
	Limit      int           // Maximum requests per minute
	Remaining  int           // Approximate tokens remaining
	ResetAt    time.Time     // When the bucket will be full again
	RetryAfter time.Duration // How long to wait (meaningful only when denied)
}

// KeyFunc derives the bucket key of a request.
type KeyFunc func(r *http.Request) string
