package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"formrelay/internal/admission"
	"formrelay/internal/journal"
	"formrelay/internal/models"
	"formrelay/internal/version"
)

const (
	defaultDeliveryLimit = 50
	defaultMaxBodyBytes  = 1 << 20
)

// QueueStatus reports the state of the delivery queue.
type QueueStatus interface {
	Len() int
	Active() bool
}

// Sizer reports how many entries a component holds.
type Sizer interface {
	Len() int
}

// Handlers contains the HTTP handlers of the relay.
type Handlers struct {
	admission    admission.ServiceInterface
	timeProxy    http.Handler
	queue        QueueStatus
	cooldowns    Sizer
	journal      journal.Journal
	maxDelivered int
	maxBodyBytes int64
	version      version.Info
	startedAt    time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithQueue reports queue depth and worker state on the health endpoint.
func WithQueue(q QueueStatus) HandlerOption {
	return func(h *Handlers) {
		h.queue = q
	}
}

// WithCooldowns reports the number of tracked sources on the health endpoint.
func WithCooldowns(s Sizer) HandlerOption {
	return func(h *Handlers) {
		h.cooldowns = s
	}
}

// WithJournal backs the deliveries endpoint and the journal health check.
func WithJournal(j journal.Journal) HandlerOption {
	return func(h *Handlers) {
		h.journal = j
	}
}

// WithDeliveryLimit caps the limit accepted by the deliveries endpoint,
// normally the journal's configured retention.
func WithDeliveryLimit(n int) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxDelivered = n
		}
	}
}

// WithMaxBodyBytes caps the size of a submitted payload.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithVersion sets the build information reported on the health endpoint.
func WithVersion(v version.Info) HandlerOption {
	return func(h *Handlers) {
		h.version = v
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc admission.ServiceInterface, timeProxy http.Handler, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		admission:    svc,
		timeProxy:    timeProxy,
		maxDelivered: journal.DefaultMaxEntries,
		maxBodyBytes: defaultMaxBodyBytes,
		startedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Submit admits a message and holds the request open until the delivery
// worker has attempted it.
// POST /api/proxy
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErrorResponse(w, http.StatusRequestEntityTooLarge, models.MessageBodyTooLarge)
			return
		}
		h.writeErrorResponse(w, http.StatusBadRequest, models.MessageInvalidBody)
		return
	}

	source := admission.SourceAddress(r)
	job, err := h.admission.Submit(r.Context(), source, payload)
	if err != nil {
		var rejection *admission.RejectionError
		if !errors.As(err, &rejection) {
			rejection = admission.NewUnavailableError(err)
		}
		if rejection.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(rejection.RetryAfter))
		}
		h.writeErrorResponse(w, rejection.StatusCode, rejection.Message)
		return
	}

	select {
	case result := <-job.Done():
		if result.Err != nil {
			h.writeErrorResponse(w, http.StatusInternalServerError, models.MessageSendFailed)
			return
		}
		h.writeJSONResponse(w, http.StatusOK, models.NewSubmitResponse())
	case <-r.Context().Done():
		slog.Info("Caller left before delivery", "job_id", job.ID, "source", source)
	}
}

// Time relays the upstream time document.
// GET /api/time
func (h *Handlers) Time(w http.ResponseWriter, r *http.Request) {
	h.timeProxy.ServeHTTP(w, r)
}

// Preflight answers CORS preflight requests with an empty 200.
func (h *Handlers) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ListDeliveries returns the most recent journal records, newest first.
// GET /api/v1/deliveries?limit=N
func (h *Handlers) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.writeJSONResponse(w, http.StatusOK, &models.ListDeliveriesResponse{Deliveries: []models.Delivery{}})
		return
	}

	limit := min(defaultDeliveryLimit, h.maxDelivered)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeErrorResponse(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, h.maxDelivered)
	}

	deliveries, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to read delivery journal", "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.MessageInternalError)
		return
	}
	if deliveries == nil {
		deliveries = []models.Delivery{}
	}

	h.writeJSONResponse(w, http.StatusOK, &models.ListDeliveriesResponse{
		Deliveries: deliveries,
		Count:      len(deliveries),
	})
}

// HealthCheck reports the queue, the cooldown table and the journal.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.Uptime = time.Since(h.startedAt).Round(time.Second).String()

	response.AddComponent("api", models.StatusHealthy, "API is operational")

	if h.queue != nil {
		response.AddMetric("queue_depth", h.queue.Len())
		response.AddMetric("worker_active", h.queue.Active())
		response.AddComponent("relay", models.StatusHealthy, "Delivery queue is operational")
	}

	if h.cooldowns != nil {
		response.AddMetric("cooldown_records", h.cooldowns.Len())
	}

	if h.journal != nil {
		if err := h.journal.Ping(r.Context()); err != nil {
			slog.Warn("Journal health check failed", "error", err)
			response.Status = models.StatusDegraded
			response.AddComponent("journal", models.StatusUnhealthy, err.Error())
		} else {
			response.AddComponent("journal", models.StatusHealthy, "Journal is operational")
		}
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data)
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, models.NewErrorResponse(message))
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written.
		slog.Error("Error encoding JSON response", "error", err)
	}
}
