// Package models - API response types.
// This file defines all outgoing response bodies. The submission and time
// endpoints keep the exact wire shapes browsers already depend on:
// {"success":true,"message":...} on success and {"error":...} on failure.
package models

import (
	"time"
)

// Caller-facing messages of the submission endpoint.
const (
	MessageSent             = "Message sent!"
	MessageMethodNotAllowed = "Method not allowed"
	MessageUnsupportedIP    = "You're using an unsupported internet brand or IP."
	MessageSendFailed       = "Failed to send message."
	MessageInvalidBody      = "Invalid request body"
	MessageBodyTooLarge     = "Request body too large"
	MessageTimeFetchFailed  = "Failed to fetch time"
	MessageUnauthorized     = "Authorization required"
	MessageInternalError    = "Internal server error"
	MessageNotFound         = "Not found"
	MessageRateLimited      = "Rate limit exceeded"
)

// SubmitResponse is returned once a relayed message reached the webhook.
type SubmitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ListDeliveriesResponse struct {
	Deliveries []Delivery `json:"deliveries"`
	Count      int        `json:"count"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

func NewSubmitResponse() *SubmitResponse {
	return &SubmitResponse{Success: true, Message: MessageSent}
}

func NewErrorResponse(message string) *ErrorResponse {
	return &ErrorResponse{Error: message}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
