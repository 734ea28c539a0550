package models

import (
	"time"
)

// Delivery outcomes recorded in the journal.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// Delivery is the audit record of one finished delivery attempt. It never
// carries the relayed payload.
type Delivery struct {
	JobID       string        `json:"job_id"`
	Source      string        `json:"source"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
	AttemptedAt time.Time     `json:"attempted_at"`
	Duration    time.Duration `json:"duration"`
	Outcome     string        `json:"outcome"`
	StatusCode  int           `json:"status_code,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Delivered reports whether the webhook accepted the payload.
func (d *Delivery) Delivered() bool {
	return d.Outcome == OutcomeDelivered
}

// QueueWait is how long the job sat in the queue before its attempt started.
func (d *Delivery) QueueWait() time.Duration {
	if d.AttemptedAt.Before(d.EnqueuedAt) {
		return 0
	}
	return d.AttemptedAt.Sub(d.EnqueuedAt)
}
