// Package cooldown enforces a fixed minimum interval between accepted
// submissions from the same source address.
package cooldown

import (
	"sync"
	"time"
)

// DefaultInterval is the reference cooldown between two accepted submissions.
const DefaultInterval = 5 * time.Minute

// Decision is the outcome of CheckAndRecord.
type Decision struct {
	Allowed bool
	// Wait is the remaining cooldown. Zero when Allowed.
	Wait time.Duration
}

// WaitSeconds returns Wait rounded up to whole seconds.
func (d Decision) WaitSeconds() int {
	secs := d.Wait / time.Second
	if d.Wait%time.Second != 0 {
		secs++
	}
	return int(secs)
}

// Tracker maps a source address to the time of its last accepted submission.
// It is safe for concurrent use. When a sweep interval is configured, a
// background goroutine drops records older than the cooldown interval; such
// records can no longer cause a rejection.
type Tracker struct {
	interval      time.Duration
	sweepInterval time.Duration

	mu   sync.Mutex
	last map[string]time.Time

	done   chan struct{}
	closed bool
}

// NewTracker creates a tracker with the given cooldown interval. A positive
// sweepInterval starts the eviction goroutine; call Close to stop it.
func NewTracker(interval, sweepInterval time.Duration) *Tracker {
	t := &Tracker{
		interval:      interval,
		sweepInterval: sweepInterval,
		last:          make(map[string]time.Time),
		done:          make(chan struct{}),
	}
	if sweepInterval > 0 {
		go t.sweep()
	}
	return t
}

// Interval returns the configured cooldown interval.
func (t *Tracker) Interval() time.Duration {
	return t.interval
}

// CheckAndRecord rejects address if its last accepted submission happened less
// than the interval before now. Otherwise it records now as the address's last
// accepted time and allows it. Check and record happen under one lock, so two
// concurrent calls for the same address cannot both be allowed.
func (t *Tracker) CheckAndRecord(address string, now time.Time) Decision {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[address]; ok {
		if elapsed := now.Sub(last); elapsed < t.interval {
			return Decision{Allowed: false, Wait: t.interval - elapsed}
		}
	}

	t.last[address] = now
	return Decision{Allowed: true}
}

// Forget drops the record for address if it still holds acceptedAt. It
// undoes an acceptance whose submission was never queued.
func (t *Tracker) Forget(address string, acceptedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.last[address]; ok && last.Equal(acceptedAt) {
		delete(t.last, address)
	}
}

// LastAccepted returns the recorded time for address.
func (t *Tracker) LastAccepted(address string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[address]
	return last, ok
}

// Len returns the number of tracked addresses.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.last)
}

// Close stops the background sweep goroutine.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		t.closed = true
		close(t.done)
	}
}

func (t *Tracker) sweep() {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case now := <-ticker.C:
			t.evictExpired(now)
		}
	}
}

// evictExpired removes records whose cooldown has fully elapsed at now.
func (t *Tracker) evictExpired(now time.Time) int {
	cutoff := now.Add(-t.interval)

	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for address, last := range t.last {
		if !last.After(cutoff) {
			delete(t.last, address)
			evicted++
		}
	}
	return evicted
}
