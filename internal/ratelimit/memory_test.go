package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"formrelay/internal/models"

	"github.com/stretchr/testify/assert"
)

func limiterConfig(rpm, burst int) models.RateLimitConfig {
	return models.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   5 * time.Minute,
	}
}

func TestMemoryLimiter_Allow_UnderLimit(t *testing.T) {
	limiter := NewMemoryLimiter(limiterConfig(60, 10))
	defer limiter.Close()

	allowed, info := limiter.Allow("192.168.1.1")
	assert.True(t, allowed)
	assert.Equal(t, 60, info.Limit)
	assert.Equal(t, 9, info.Remaining)
	assert.False(t, info.ResetAt.IsZero())
}

func TestMemoryLimiter_Allow_ExceedsBurst(t *testing.T) {
	limiter := NewMemoryLimiter(limiterConfig(60, 3))
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		allowed, _ := limiter.Allow("192.168.1.1")
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, info := limiter.Allow("192.168.1.1")
	assert.False(t, allowed)
	assert.Greater(t, info.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, info.RetryAfter, time.Second)
	assert.Equal(t, 0, info.Remaining)
}

func TestMemoryLimiter_Allow_DifferentKeys(t *testing.T) {
	limiter := NewMemoryLimiter(limiterConfig(60, 2))
	defer limiter.Close()

	for i := 0; i < 2; i++ {
		limiter.Allow("key1")
	}
	allowed1, _ := limiter.Allow("key1")
	assert.False(t, allowed1, "key1 should be denied")

	allowed2, _ := limiter.Allow("key2")
	assert.True(t, allowed2, "key2 should be allowed")
	assert.Equal(t, 2, limiter.Len())
}

func TestMemoryLimiter_ZeroBurstTreatedAsOne(t *testing.T) {
	limiter := NewMemoryLimiter(limiterConfig(60, 0))
	defer limiter.Close()

	allowed, _ := limiter.Allow("k")
	assert.True(t, allowed)
	allowed, _ = limiter.Allow("k")
	assert.False(t, allowed)
}

func TestMemoryLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewMemoryLimiter(limiterConfig(1000, 100))
	defer limiter.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				limiter.Allow(fmt.Sprintf("key-%d", id%5))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, limiter.Len())
}

func TestMemoryLimiter_EvictIdle(t *testing.T) {
	limiter := NewMemoryLimiter(limiterConfig(60, 10))
	defer limiter.Close()

	limiter.Allow("stale")
	limiter.Allow("fresh")

	limiter.mu.Lock()
	limiter.buckets["stale"].lastSeen = time.Now().Add(-time.Hour)
	limiter.mu.Unlock()

	assert.Equal(t, 1, limiter.evictIdle(time.Now()))
	assert.Equal(t, 1, limiter.Len())
}

func TestMemoryLimiter_Close(t *testing.T) {
	limiter := NewMemoryLimiter(limiterConfig(60, 10))
	limiter.Close()
	// Should not panic on double close
	limiter.Close()
}
