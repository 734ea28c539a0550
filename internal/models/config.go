// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every component of the relay.
//
// Configuration Philosophy:
// - Hierarchical configuration grouped by component (server, relay, cooldown, reputation, ...)
// - Defaults reproduce the reference behaviour: 5 minute cooldown, 3 second pacing
// - Validation runs once at startup so misconfigurations fail fast
package models

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// Journal type constants
const (
	JournalTypeNone     = "none"
	JournalTypeMemory   = "memory"
	JournalTypeSQLite   = "sqlite"
	JournalTypePostgres = "postgres"
	JournalTypeRedis    = "redis"
)

// Reputation strategy constants
const (
	StrategyScore         = "score"
	StrategyASNAllow      = "asn_allow"
	StrategyOperatorAllow = "operator_allow"
	StrategyOperatorBlock = "operator_block"
	StrategyNone          = "none"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP listener settings
// - Relay: downstream webhook delivery and pacing
// - Cooldown: per-source admission interval
// - Reputation: IP reputation provider and decision rule
// - TimeProxy: the time lookup pass-through endpoint
// - Journal: delivery audit records
// - Security, Logging, Metrics, Observability: ambient concerns
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Relay         RelayConfig         `yaml:"relay" json:"relay"`
	Cooldown      CooldownConfig      `yaml:"cooldown" json:"cooldown"`
	Reputation    ReputationConfig    `yaml:"reputation" json:"reputation"`
	TimeProxy     TimeProxyConfig     `yaml:"time_proxy" json:"time_proxy"`
	Journal       JournalConfig       `yaml:"journal" json:"journal"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

// RelayConfig controls delivery to the downstream webhook.
//
// Pace is the pause inserted after every delivery attempt. Timeout bounds a
// single forwarding call; zero means the call may block indefinitely and with
// it the whole queue.
type RelayConfig struct {
	WebhookURL   string        `yaml:"webhook_url" json:"webhook_url"`
	Pace         time.Duration `yaml:"pace" json:"pace"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
}

type CooldownConfig struct {
	Interval      time.Duration `yaml:"interval" json:"interval"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// ReputationConfig selects the reputation provider and its decision rule.
// Endpoint may contain the placeholders {ip} and {key}.
type ReputationConfig struct {
	Strategy       string        `yaml:"strategy" json:"strategy"`
	Endpoint       string        `yaml:"endpoint" json:"endpoint"`
	APIKey         string        `yaml:"api_key" json:"-"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	ScoreThreshold float64       `yaml:"score_threshold" json:"score_threshold"`
	ASNs           []int         `yaml:"asns" json:"asns"`
	Operators      []string      `yaml:"operators" json:"operators"`
	FailClosed     *bool         `yaml:"fail_closed,omitempty" json:"fail_closed,omitempty"`
	ExemptNetworks []string      `yaml:"exempt_networks" json:"exempt_networks"`
}

type TimeProxyConfig struct {
	UpstreamURL string          `yaml:"upstream_url" json:"upstream_url"`
	Timeout     time.Duration   `yaml:"timeout" json:"timeout"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type JournalConfig struct {
	Type       string      `yaml:"type" json:"type"`
	DSN        string      `yaml:"dsn" json:"-"`
	MaxEntries int         `yaml:"max_entries" json:"max_entries"`
	Redis      RedisConfig `yaml:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
	Key      string `yaml:"key" json:"key"`
}

// SecurityConfig only guards operator endpoints. Submission callers are
// never authenticated.
type SecurityConfig struct {
	AdminToken string `yaml:"admin_token" json:"-"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with the reference defaults.
//
// Default Values Rationale:
// - 5 minute cooldown and 3 second pacing match the downstream webhook's limits
// - No timeout on reputation or delivery calls, as in the reference behaviour
// - WriteTimeout is 0 because a caller waits for its job to reach the head of the queue
// - In-memory journal: no external dependencies
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			ReadTimeout: 30 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		Relay: RelayConfig{
			Pace:         3 * time.Second,
			MaxBodyBytes: 1 << 20,
		},
		Cooldown: CooldownConfig{
			Interval:      5 * time.Minute,
			SweepInterval: 10 * time.Minute,
		},
		Reputation: ReputationConfig{
			Strategy:       StrategyScore,
			Endpoint:       "https://ipqualityscore.com/api/json/ip/{key}/{ip}",
			ScoreThreshold: 75,
			ASNs:           []int{},
			Operators:      []string{},
			ExemptNetworks: []string{},
		},
		TimeProxy: TimeProxyConfig{
			UpstreamURL: "https://worldtimeapi.org/api/timezone/America/Chicago",
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
		},
		Journal: JournalConfig{
			Type:       JournalTypeMemory,
			MaxEntries: 1000,
			Redis: RedisConfig{
				Key: "formrelay:deliveries",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "formrelay",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("invalid relay config: %w", err)
	}

	if err := c.Cooldown.Validate(); err != nil {
		return fmt.Errorf("invalid cooldown config: %w", err)
	}

	if err := c.Reputation.Validate(); err != nil {
		return fmt.Errorf("invalid reputation config: %w", err)
	}

	if err := c.TimeProxy.Validate(); err != nil {
		return fmt.Errorf("invalid time proxy config: %w", err)
	}

	if err := c.Journal.Validate(); err != nil {
		return fmt.Errorf("invalid journal config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (rc *RelayConfig) Validate() error {
	if rc.WebhookURL == "" {
		return errors.New("webhook URL is required")
	}
	if err := validateHTTPURL(rc.WebhookURL); err != nil {
		return fmt.Errorf("webhook URL: %w", err)
	}

	if rc.Pace < 0 {
		return errors.New("pace cannot be negative")
	}

	if rc.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}

	if rc.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}

	return nil
}

func (cc *CooldownConfig) Validate() error {
	if cc.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	if cc.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}
	return nil
}

func (rc *ReputationConfig) Validate() error {
	switch rc.Strategy {
	case StrategyNone:
		return nil
	case StrategyScore:
		if rc.ScoreThreshold < 0 {
			return errors.New("score threshold cannot be negative")
		}
	case StrategyASNAllow:
		if len(rc.ASNs) == 0 {
			return errors.New("asn_allow strategy requires at least one ASN")
		}
	case StrategyOperatorAllow, StrategyOperatorBlock:
		if len(rc.Operators) == 0 {
			return fmt.Errorf("%s strategy requires at least one operator", rc.Strategy)
		}
	default:
		return fmt.Errorf("invalid strategy: %s", rc.Strategy)
	}

	if rc.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if !strings.Contains(rc.Endpoint, "{ip}") {
		return errors.New("endpoint must contain the {ip} placeholder")
	}
	if rc.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}

	for _, cidr := range rc.ExemptNetworks {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("invalid exempt network %q: %w", cidr, err)
		}
	}

	return nil
}

func (tc *TimeProxyConfig) Validate() error {
	if tc.UpstreamURL == "" {
		return errors.New("upstream URL is required")
	}
	if err := validateHTTPURL(tc.UpstreamURL); err != nil {
		return fmt.Errorf("upstream URL: %w", err)
	}
	if tc.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	if tc.RateLimit.Enabled {
		if tc.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("requests per minute must be positive")
		}
		if tc.RateLimit.BurstSize <= 0 {
			return errors.New("burst size must be positive")
		}
		if tc.RateLimit.CleanupInterval <= 0 {
			return errors.New("cleanup interval must be positive")
		}
	}
	return nil
}

func (jc *JournalConfig) Validate() error {
	switch jc.Type {
	case JournalTypeNone:
		return nil
	case JournalTypeMemory:
		if jc.MaxEntries <= 0 {
			return errors.New("max entries must be positive for memory journal")
		}
	case JournalTypeSQLite, JournalTypePostgres:
		if jc.DSN == "" {
			return fmt.Errorf("DSN is required for %s journal", jc.Type)
		}
	case JournalTypeRedis:
		if jc.Redis.Addr == "" {
			return errors.New("Redis address is required for redis journal")
		}
		if jc.Redis.Key == "" {
			return errors.New("Redis key is required for redis journal")
		}
		if jc.MaxEntries <= 0 {
			return errors.New("max entries must be positive for redis journal")
		}
	default:
		return fmt.Errorf("invalid journal type: %s", jc.Type)
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, vl := range validLevels {
		if lc.Level == vl {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	found = false
	for _, vf := range validFormats {
		if lc.Format == vf {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	found = false
	for _, vo := range validOutputs {
		if lc.Output == vo {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if !oc.Tracing.Enabled {
		return nil
	}
	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required for otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}
	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is missing")
	}
	return nil
}
