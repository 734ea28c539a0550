package relay

import (
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one delivery attempt. Err is nil on success.
type Result struct {
	Err error
}

// Job is one accepted submission waiting for delivery. Its fields are never
// modified after NewJob returns.
type Job struct {
	ID         string
	Source     string
	Payload    []byte
	EnqueuedAt time.Time

	done chan Result
}

// NewJob captures payload for delivery on behalf of source.
func NewJob(source string, payload []byte, enqueuedAt time.Time) *Job {
	return &Job{
		ID:         uuid.New().String(),
		Source:     source,
		Payload:    payload,
		EnqueuedAt: enqueuedAt,
		done:       make(chan Result, 1),
	}
}

// Done receives exactly one Result once the job has been attempted.
func (j *Job) Done() <-chan Result {
	return j.done
}

// resolve never blocks; the channel holds the single result even when the
// submitter has stopped waiting.
func (j *Job) resolve(err error) {
	j.done <- Result{Err: err}
}
