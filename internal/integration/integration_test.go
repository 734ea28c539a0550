package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"formrelay/internal/admission"
	"formrelay/internal/api"
	"formrelay/internal/config"
	"formrelay/internal/cooldown"
	"formrelay/internal/journal"
	"formrelay/internal/models"
	"formrelay/internal/relay"
	"formrelay/internal/reputation"
	"formrelay/internal/timeproxy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests that run the relay end-to-end against fake webhook,
// reputation and time services.

const abusiveAddress = "203.0.113.66"

type webhookCall struct {
	body        string
	contentType string
	at          time.Time
}

// webhook records every delivery. It answers with status, 204 by default.
type webhook struct {
	server   *httptest.Server
	status   atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool

	mu    sync.Mutex
	calls []webhookCall
}

func newWebhook(t *testing.T) *webhook {
	t.Helper()
	wh := &webhook{}
	wh.status.Store(http.StatusNoContent)
	wh.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wh.inFlight.Add(1) > 1 {
			wh.overlap.Store(true)
		}
		defer wh.inFlight.Add(-1)

		body, _ := io.ReadAll(r.Body)
		wh.mu.Lock()
		wh.calls = append(wh.calls, webhookCall{
			body:        string(body),
			contentType: r.Header.Get("Content-Type"),
			at:          time.Now(),
		})
		wh.mu.Unlock()

		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(int(wh.status.Load()))
	}))
	t.Cleanup(wh.server.Close)
	return wh
}

func (wh *webhook) received() []webhookCall {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	return append([]webhookCall(nil), wh.calls...)
}

// newReputationProvider scores abusiveAddress at 90 and everything else at 0.
func newReputationProvider(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		score := 0
		if path.Base(r.URL.Path) == abusiveAddress {
			score = 90
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":     true,
			"fraud_score": score,
			"proxy":       false,
			"vpn":         false,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

type relayEnv struct {
	server  *httptest.Server
	webhook *webhook
	journal journal.Journal
}

// newRelay wires the whole pipeline the way the service binary does.
func newRelay(t *testing.T, repStatus int, pace time.Duration) *relayEnv {
	t.Helper()

	wh := newWebhook(t)
	rep := newReputationProvider(t, repStatus)
	clock := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"timezone":"America/Chicago","unixtime":1767344645}`)
	}))
	t.Cleanup(clock.Close)

	cfg := models.NewDefaultConfig()
	cfg.Relay.WebhookURL = wh.server.URL
	cfg.Relay.Pace = pace
	cfg.Reputation.Endpoint = rep.URL + "/api/json/ip/{key}/{ip}"
	cfg.Reputation.APIKey = "test-key"
	cfg.TimeProxy.UpstreamURL = clock.URL
	cfg.Security.AdminToken = "admin-token"
	require.NoError(t, cfg.Validate())

	ctx := context.Background()
	j, err := journal.New(ctx, cfg.Journal)
	require.NoError(t, err)

	classifier, err := reputation.New(cfg.Reputation)
	require.NoError(t, err)

	tracker := cooldown.NewTracker(cfg.Cooldown.Interval, cfg.Cooldown.SweepInterval)
	dispatcher := relay.NewDispatcher(
		relay.NewWebhookForwarder(cfg.Relay.WebhookURL, 5*time.Second, "formrelay/test"),
		relay.WithPace(cfg.Relay.Pace),
		relay.WithRecorder(j),
	)
	svc := admission.NewService(classifier, tracker, dispatcher)

	handlers := api.NewHandlers(svc, timeproxy.New(cfg.TimeProxy.UpstreamURL, 5*time.Second, "formrelay/test"),
		api.WithQueue(dispatcher),
		api.WithCooldowns(tracker),
		api.WithJournal(j),
		api.WithMaxBodyBytes(cfg.Relay.MaxBodyBytes),
	)
	server := httptest.NewServer(api.SetupRoutes(handlers, cfg))

	t.Cleanup(func() {
		server.Close()
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = dispatcher.Close(closeCtx)
		tracker.Close()
		_ = j.Close()
	})

	return &relayEnv{server: server, webhook: wh, journal: j}
}

func (e *relayEnv) submit(t *testing.T, source, body string) (int, string, http.Header) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/api/proxy", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", source)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data), resp.Header
}

func TestIntegration_SubmitFlow(t *testing.T) {
	env := newRelay(t, http.StatusOK, 10*time.Millisecond)

	// Step 1: a clean source is delivered verbatim
	status, body, header := env.submit(t, "198.51.100.1", `{"content":"hello from the form"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success":true,"message":"Message sent!"}`, body)
	assert.Equal(t, "*", header.Get("Access-Control-Allow-Origin"))

	calls := env.webhook.received()
	require.Len(t, calls, 1)
	assert.Equal(t, `{"content":"hello from the form"}`, calls[0].body)
	assert.Equal(t, "application/json", calls[0].contentType)

	// Step 2: the same source is cooling down
	status, body, header = env.submit(t, "198.51.100.1", `{"content":"again"}`)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.JSONEq(t, `{"error":"Slow down! You must wait 300 seconds before sending another message."}`, body)
	assert.Equal(t, "300", header.Get("Retry-After"))

	// Step 3: an abusive source is rejected and never reaches the webhook
	status, body, _ = env.submit(t, abusiveAddress, `{"content":"spam"}`)
	assert.Equal(t, http.StatusForbidden, status)
	assert.JSONEq(t, `{"error":"You're using an unsupported internet brand or IP."}`, body)
	assert.Len(t, env.webhook.received(), 1)

	// Step 4: the abusive source holds no cooldown record, the clean one does
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/health", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var health models.HealthCheckResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, models.StatusHealthy, health.Status)
	assert.Equal(t, float64(1), health.Metrics["cooldown_records"])

	// Step 5: the journal lists the delivery
	require.Eventually(t, func() bool {
		recent, err := env.journal.Recent(context.Background(), 10)
		return err == nil && len(recent) == 1
	}, 2*time.Second, 10*time.Millisecond)
	req, err = http.NewRequest(http.MethodGet, env.server.URL+"/api/v1/deliveries", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer admin-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list models.ListDeliveriesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "198.51.100.1", list.Deliveries[0].Source)
	assert.Equal(t, models.OutcomeDelivered, list.Deliveries[0].Outcome)
	assert.Equal(t, http.StatusNoContent, list.Deliveries[0].StatusCode)
}

func TestIntegration_SerializedPacedDelivery(t *testing.T) {
	const pace = 100 * time.Millisecond
	env := newRelay(t, http.StatusOK, pace)

	sources := []string{"198.51.100.10", "198.51.100.11", "198.51.100.12", "198.51.100.13"}

	var wg sync.WaitGroup
	statuses := make([]int, len(sources))
	for i, source := range sources {
		wg.Add(1)
		go func(i int, source string) {
			defer wg.Done()
			statuses[i], _, _ = env.submit(t, source, `{"content":"`+source+`"}`)
		}(i, source)
	}
	wg.Wait()

	for i, status := range statuses {
		assert.Equal(t, http.StatusOK, status, "source %s", sources[i])
	}

	calls := env.webhook.received()
	require.Len(t, calls, len(sources))
	assert.False(t, env.webhook.overlap.Load(), "deliveries must never overlap")
	for i := 1; i < len(calls); i++ {
		gap := calls[i].at.Sub(calls[i-1].at)
		assert.GreaterOrEqual(t, gap, pace, "delivery %d started %v after the previous one", i, gap)
	}
}

func TestIntegration_WebhookFailureDoesNotStopQueue(t *testing.T) {
	env := newRelay(t, http.StatusOK, 10*time.Millisecond)

	env.webhook.status.Store(http.StatusInternalServerError)
	status, body, _ := env.submit(t, "198.51.100.20", `{"content":"first"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.JSONEq(t, `{"error":"Failed to send message."}`, body)

	env.webhook.status.Store(http.StatusOK)
	status, _, _ = env.submit(t, "198.51.100.21", `{"content":"second"}`)
	assert.Equal(t, http.StatusOK, status)

	// The submitter is answered before the attempt is journaled.
	var recent []models.Delivery
	require.Eventually(t, func() bool {
		var err error
		recent, err = env.journal.Recent(context.Background(), 10)
		return err == nil && len(recent) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.OutcomeDelivered, recent[0].Outcome)
	assert.Equal(t, models.OutcomeFailed, recent[1].Outcome)
	assert.Equal(t, http.StatusInternalServerError, recent[1].StatusCode)
	assert.NotEmpty(t, recent[1].Error)
}

func TestIntegration_ReputationOutageFailsOpen(t *testing.T) {
	env := newRelay(t, http.StatusServiceUnavailable, 10*time.Millisecond)

	status, _, _ := env.submit(t, abusiveAddress, `{"content":"provider is down"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, env.webhook.received(), 1)
}

func TestIntegration_PreflightAndMethods(t *testing.T) {
	env := newRelay(t, http.StatusOK, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/api/proxy", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
	assert.Equal(t, "POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))

	resp, err = http.Get(env.server.URL + "/api/proxy")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Method not allowed"}`, string(body))

	assert.Empty(t, env.webhook.received())
}

func TestIntegration_TimeProxy(t *testing.T) {
	env := newRelay(t, http.StatusOK, 10*time.Millisecond)

	resp, err := http.Get(env.server.URL + "/api/time")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GET, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.JSONEq(t, `{"timezone":"America/Chicago","unixtime":1767344645}`, string(body))
}

func TestIntegration_ConfigLoading(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, "integration_config.yaml")

	configContent := `
server:
  port: 8081
  host: "127.0.0.1"
  read_timeout: 45s
  idle_timeout: 90s

relay:
  webhook_url: "https://hooks.example.com/relay"
  pace: 2s
  timeout: 15s
  max_body_bytes: 65536

cooldown:
  interval: 10m
  sweep_interval: 1m

reputation:
  strategy: "asn_allow"
  endpoint: "https://ip-api.example.com/json/{ip}"
  asns: [7922, 701]
  exempt_networks: ["10.0.0.0/8"]

time_proxy:
  upstream_url: "https://time.example.com/now"
  rate_limit:
    enabled: true
    requests_per_minute: 120
    burst_size: 20
    cleanup_interval: 5m

journal:
  type: "memory"
  max_entries: 250

logging:
  level: "debug"
  format: "text"

metrics:
  enabled: true
  port: 9091
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := config.Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 90*time.Second, cfg.Server.IdleTimeout)

	assert.Equal(t, "https://hooks.example.com/relay", cfg.Relay.WebhookURL)
	assert.Equal(t, 2*time.Second, cfg.Relay.Pace)
	assert.Equal(t, 15*time.Second, cfg.Relay.Timeout)
	assert.Equal(t, int64(65536), cfg.Relay.MaxBodyBytes)

	assert.Equal(t, 10*time.Minute, cfg.Cooldown.Interval)
	assert.Equal(t, models.StrategyASNAllow, cfg.Reputation.Strategy)
	assert.Equal(t, []int{7922, 701}, cfg.Reputation.ASNs)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.Reputation.ExemptNetworks)

	assert.True(t, cfg.TimeProxy.RateLimit.Enabled)
	assert.Equal(t, 120, cfg.TimeProxy.RateLimit.RequestsPerMinute)
	assert.Equal(t, 250, cfg.Journal.MaxEntries)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 9091, cfg.Metrics.Port)

	classifier, err := reputation.New(cfg.Reputation)
	require.NoError(t, err)
	assert.NotNil(t, classifier)
}
