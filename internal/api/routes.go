package api

import (
	"net/http"

	"formrelay/internal/models"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

const (
	submitMethods = "POST, OPTIONS"
	timeMethods   = "GET, OPTIONS"
)

// RouteOption configures optional route behavior.
type RouteOption func(*routeOptions)

type routeOptions struct {
	serviceName   string
	timeRateLimit mux.MiddlewareFunc
}

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(o *routeOptions) {
		o.serviceName = serviceName
	}
}

// WithTimeRateLimit guards the time proxy with middleware.
func WithTimeRateLimit(middleware func(http.Handler) http.Handler) RouteOption {
	return func(o *routeOptions) {
		o.timeRateLimit = middleware
	}
}

// SetupRoutes configures the HTTP routes of the relay.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	router := mux.NewRouter()

	if o.serviceName != "" {
		router.Use(otelmux.Middleware(o.serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/api/v1/openapi.yaml" &&
					r.URL.Path != "/api/v1/docs"
			}),
		))
	}
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	submit := router.Path("/api/proxy").Subrouter()
	submit.Use(corsMiddleware(submitMethods))
	submit.Methods(http.MethodOptions).HandlerFunc(handlers.Preflight)
	submit.Methods(http.MethodPost).HandlerFunc(handlers.Submit)
	submit.NewRoute().HandlerFunc(methodNotAllowedHandler)

	clock := router.Path("/api/time").Subrouter()
	clock.Use(corsMiddleware(timeMethods))
	if o.timeRateLimit != nil {
		clock.Use(o.timeRateLimit)
	}
	clock.Methods(http.MethodOptions).HandlerFunc(handlers.Preflight)
	clock.Methods(http.MethodGet).HandlerFunc(handlers.Time)
	clock.NewRoute().HandlerFunc(methodNotAllowedHandler)

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	api.HandleFunc("/openapi.yaml", handlers.ServeOpenAPISpec).Methods(http.MethodGet)
	api.HandleFunc("/docs", handlers.ServeSwaggerUI).Methods(http.MethodGet)

	if config.Security.AdminToken != "" {
		admin := api.PathPrefix("/deliveries").Subrouter()
		admin.Use(adminTokenMiddleware(config.Security.AdminToken))
		admin.HandleFunc("", handlers.ListDeliveries).Methods(http.MethodGet)
	}

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse(models.MessageNotFound))
	})

	return router
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, models.NewErrorResponse(models.MessageMethodNotAllowed))
}
