// Package relay serializes delivery of accepted submissions to the downstream
// webhook.
//
// A Dispatcher owns a FIFO queue and at most one drain goroutine. The drain
// goroutine delivers jobs strictly in arrival order and pauses for the
// configured pace after every job, so the webhook never sees two deliveries
// closer together than the pace.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"formrelay/internal/models"
)

// DefaultPace is the pause after each delivery attempt.
const DefaultPace = 3 * time.Second

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("dispatcher is closed")

// Recorder receives one record per finished delivery attempt.
type Recorder interface {
	Record(ctx context.Context, d models.Delivery) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPace sets the pause after each job.
func WithPace(pace time.Duration) Option {
	return func(d *Dispatcher) {
		d.pace = pace
	}
}

// WithRecorder journals every attempt to r.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// Dispatcher is the delivery queue together with its single worker.
type Dispatcher struct {
	forwarder Forwarder
	recorder  Recorder
	pace      time.Duration

	mu     sync.Mutex
	queue  []*Job
	closed bool

	active atomic.Bool
	drains sync.WaitGroup
}

// NewDispatcher creates an idle dispatcher delivering through forwarder.
func NewDispatcher(forwarder Forwarder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		forwarder: forwarder,
		pace:      DefaultPace,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue appends job to the tail of the queue and starts the worker if it
// is idle. The closed check, the append and the worker start share one
// critical section, so Close never waits on a drain group that can still grow.
func (d *Dispatcher) Enqueue(job *Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.queue = append(d.queue, job)
	d.startLocked()
	return nil
}

// Drain starts the worker unless one is already running or the dispatcher is
// closed. It never blocks on delivery.
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.startLocked()
}

// startLocked must be called with d.mu held.
func (d *Dispatcher) startLocked() {
	if !d.active.CompareAndSwap(false, true) {
		return
	}
	d.drains.Add(1)
	go d.run()
}

// Len returns the number of queued jobs, including the one being delivered.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Active reports whether a drain loop is running.
func (d *Dispatcher) Active() bool {
	return d.active.Load()
}

// Close rejects further jobs and waits until the running drain has emptied
// the queue or ctx is done. Queued jobs are never cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.drains.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.drains.Done()

	for {
		job := d.head()
		if job == nil {
			d.active.Store(false)
			// An Enqueue racing with the store above saw the flag still set
			// and returned without starting a worker; pick its job up here.
			if d.Len() == 0 || !d.active.CompareAndSwap(false, true) {
				return
			}
			continue
		}

		d.deliver(job)
		d.pop()

		if d.pace > 0 {
			time.Sleep(d.pace)
		}
	}
}

func (d *Dispatcher) head() *Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil
	}
	return d.queue[0]
}

func (d *Dispatcher) pop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue[0] = nil
	d.queue = d.queue[1:]
}

// deliver attempts job once, resolves its submitter and journals the outcome.
func (d *Dispatcher) deliver(job *Job) {
	ctx := context.Background()
	attempted := time.Now()

	status, err := d.forwarder.Forward(ctx, job.Payload)
	job.resolve(err)

	record := models.Delivery{
		JobID:       job.ID,
		Source:      job.Source,
		EnqueuedAt:  job.EnqueuedAt,
		AttemptedAt: attempted,
		Duration:    time.Since(attempted),
		Outcome:     models.OutcomeDelivered,
		StatusCode:  status,
	}
	if err != nil {
		record.Outcome = models.OutcomeFailed
		record.Error = err.Error()
		slog.Warn("Delivery failed",
			"job_id", job.ID,
			"source", job.Source,
			"status_code", status,
			"error", err)
	} else {
		slog.Info("Delivery succeeded",
			"job_id", job.ID,
			"source", job.Source,
			"status_code", status,
			"queue_wait", record.QueueWait())
	}

	if d.recorder != nil {
		if rerr := d.recorder.Record(ctx, record); rerr != nil {
			slog.Warn("Failed to journal delivery", "job_id", job.ID, "error", rerr)
		}
	}
}
