package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"formrelay/internal/admission"
	"formrelay/internal/api"
	"formrelay/internal/config"
	"formrelay/internal/cooldown"
	"formrelay/internal/journal"
	"formrelay/internal/logger"
	"formrelay/internal/models"
	"formrelay/internal/observability"
	"formrelay/internal/ratelimit"
	"formrelay/internal/relay"
	"formrelay/internal/reputation"
	"formrelay/internal/timeproxy"
	"formrelay/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	exampleConfig = flag.String("write-example-config", "", "Write an example configuration file to this path and exit")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	if *exampleConfig != "" {
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	p, err := buildPipeline(context.Background(), cfg, ver, otelProvider)
	if err != nil {
		slog.Error("Failed to initialize relay", "error", err)
		os.Exit(1)
	}
	defer p.close()

	handlers := api.NewHandlers(p.admission, timeproxy.New(cfg.TimeProxy.UpstreamURL, cfg.TimeProxy.Timeout, ver.UserAgent()),
		api.WithQueue(p.dispatcher),
		api.WithCooldowns(p.tracker),
		api.WithJournal(p.journal),
		api.WithDeliveryLimit(cfg.Journal.MaxEntries),
		api.WithMaxBodyBytes(cfg.Relay.MaxBodyBytes),
		api.WithVersion(ver),
	)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if otelProvider.TracingEnabled() {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	// Initialize rate limiter if enabled
	if cfg.TimeProxy.RateLimit.Enabled {
		limiter := ratelimit.NewMemoryLimiter(cfg.TimeProxy.RateLimit)
		defer limiter.Close()
		routeOpts = append(routeOpts, api.WithTimeRateLimit(ratelimit.Middleware(limiter, admission.SourceAddress)))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// WriteTimeout must cover the time a submission waits in the queue.
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"strategy", cfg.Reputation.Strategy,
			"journal", cfg.Journal.Type,
			"pace", cfg.Relay.Pace,
			"cooldown", cfg.Cooldown.Interval)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Queued jobs are still attempted.
	if err := p.dispatcher.Close(ctx); err != nil {
		slog.Error("Delivery queue did not drain before shutdown", "error", err, "pending", p.dispatcher.Len())
	}

	slog.Info("Server shutdown complete")
}

// pipeline holds the long-lived components behind the HTTP handlers.
type pipeline struct {
	journal    journal.Journal
	tracker    *cooldown.Tracker
	dispatcher *relay.Dispatcher
	admission  *admission.Service
}

func (p *pipeline) close() {
	p.tracker.Close()
	if err := p.journal.Close(); err != nil {
		slog.Error("Failed to close journal", "error", err)
	}
}

// buildPipeline wires journal, classifier, cooldown tracker, forwarder and
// dispatcher. Instrumented wrappers are used when metrics are enabled.
func buildPipeline(ctx context.Context, cfg *models.Config, ver version.Info, provider *observability.Provider) (*pipeline, error) {
	j, err := journal.New(ctx, cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	classifier, err := reputation.New(cfg.Reputation)
	if err != nil {
		j.Close()
		return nil, fmt.Errorf("failed to initialize reputation classifier: %w", err)
	}

	var forwarder relay.Forwarder = relay.NewWebhookForwarder(cfg.Relay.WebhookURL, cfg.Relay.Timeout, ver.UserAgent())

	var serviceOpts []admission.Option
	if provider.MetricsEnabled() || provider.TracingEnabled() {
		instrumentedJournal, err := observability.NewInstrumentedJournal(j)
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("failed to instrument journal: %w", err)
		}
		j = instrumentedJournal

		instrumentedClassifier, err := observability.NewInstrumentedClassifier(classifier, cfg.Reputation.Strategy)
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("failed to instrument classifier: %w", err)
		}
		classifier = instrumentedClassifier

		instrumentedForwarder, err := observability.NewInstrumentedForwarder(forwarder)
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("failed to instrument forwarder: %w", err)
		}
		forwarder = instrumentedForwarder

		admissionMetrics, err := observability.NewAdmissionMetrics()
		if err != nil {
			j.Close()
			return nil, fmt.Errorf("failed to create admission metrics: %w", err)
		}
		serviceOpts = append(serviceOpts, admission.WithObserver(admissionMetrics))
	}

	tracker := cooldown.NewTracker(cfg.Cooldown.Interval, cfg.Cooldown.SweepInterval)
	dispatcher := relay.NewDispatcher(forwarder,
		relay.WithPace(cfg.Relay.Pace),
		relay.WithRecorder(j),
	)

	if provider.MetricsEnabled() {
		if err := observability.RegisterStateGauges(dispatcher, tracker); err != nil {
			tracker.Close()
			j.Close()
			return nil, fmt.Errorf("failed to register state gauges: %w", err)
		}
	}

	return &pipeline{
		journal:    j,
		tracker:    tracker,
		dispatcher: dispatcher,
		admission:  admission.NewService(classifier, tracker, dispatcher, serviceOpts...),
	}, nil
}
