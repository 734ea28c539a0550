// Package admission decides whether a submission may enter the delivery
// queue. Checks run in a fixed order: reputation, then cooldown, then
// enqueue. A reputation rejection never creates a cooldown record.
package admission

import (
	"context"
	"log/slog"
	"time"

	"formrelay/internal/cooldown"
	"formrelay/internal/relay"
	"formrelay/internal/reputation"
)

// Outcome labels reported to an Observer.
const (
	OutcomeAccepted    = "accepted"
	OutcomeAbusive     = "abusive"
	OutcomeCoolingDown = "cooling_down"
	OutcomeUnavailable = "unavailable"
)

// CooldownChecker is the part of cooldown.Tracker used here.
type CooldownChecker interface {
	CheckAndRecord(address string, now time.Time) cooldown.Decision
	Forget(address string, acceptedAt time.Time)
}

// Queue accepts jobs for delivery.
type Queue interface {
	Enqueue(job *relay.Job) error
}

// Observer is notified of every admission outcome.
type Observer interface {
	ObserveAdmission(ctx context.Context, outcome string)
}

// ServiceInterface defines the admission operations used by the HTTP layer.
type ServiceInterface interface {
	Submit(ctx context.Context, address string, payload []byte) (*relay.Job, error)
}

var _ ServiceInterface = (*Service)(nil)

// Service runs the admission pipeline.
type Service struct {
	classifier reputation.Classifier
	cooldown   CooldownChecker
	queue      Queue
	observer   Observer
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithObserver reports outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		s.observer = o
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService wires the pipeline stages together.
func NewService(classifier reputation.Classifier, checker CooldownChecker, queue Queue, opts ...Option) *Service {
	s := &Service{
		classifier: classifier,
		cooldown:   checker,
		queue:      queue,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit screens address and, when admitted, enqueues payload. The returned
// job resolves once its delivery has been attempted. A rejection is always a
// *RejectionError.
func (s *Service) Submit(ctx context.Context, address string, payload []byte) (*relay.Job, error) {
	if s.classifier.Classify(ctx, address) == reputation.Abusive {
		slog.Info("Submission rejected by reputation check", "source", address)
		s.observe(ctx, OutcomeAbusive)
		return nil, NewAbusiveSourceError()
	}

	now := s.now()
	decision := s.cooldown.CheckAndRecord(address, now)
	if !decision.Allowed {
		wait := decision.WaitSeconds()
		slog.Info("Submission rejected by cooldown", "source", address, "wait_seconds", wait)
		s.observe(ctx, OutcomeCoolingDown)
		return nil, NewCooldownError(wait)
	}

	job := relay.NewJob(address, payload, now)
	if err := s.queue.Enqueue(job); err != nil {
		slog.Error("Failed to enqueue submission", "source", address, "error", err)
		s.cooldown.Forget(address, now)
		s.observe(ctx, OutcomeUnavailable)
		return nil, NewUnavailableError(err)
	}

	slog.Debug("Submission queued", "source", address, "job_id", job.ID)
	s.observe(ctx, OutcomeAccepted)
	return job, nil
}

func (s *Service) observe(ctx context.Context, outcome string) {
	if s.observer != nil {
		s.observer.ObserveAdmission(ctx, outcome)
	}
}
