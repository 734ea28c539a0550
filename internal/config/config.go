package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"formrelay/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file. Unknown keys are
// rejected so a misspelled setting does not silently fall back to its default.
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("FORMRELAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("FORMRELAY_HOST"); host != "" {
		config.Server.Host = host
	}
	setDuration("FORMRELAY_READ_TIMEOUT", &config.Server.ReadTimeout)
	setDuration("FORMRELAY_WRITE_TIMEOUT", &config.Server.WriteTimeout)
	setDuration("FORMRELAY_IDLE_TIMEOUT", &config.Server.IdleTimeout)
	if tls := os.Getenv("FORMRELAY_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}
	if certFile := os.Getenv("FORMRELAY_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}
	if keyFile := os.Getenv("FORMRELAY_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	// Relay configuration
	if webhook := os.Getenv("FORMRELAY_WEBHOOK_URL"); webhook != "" {
		config.Relay.WebhookURL = webhook
	}
	setDuration("FORMRELAY_RELAY_PACE", &config.Relay.Pace)
	setDuration("FORMRELAY_RELAY_TIMEOUT", &config.Relay.Timeout)
	if maxBody := os.Getenv("FORMRELAY_RELAY_MAX_BODY_BYTES"); maxBody != "" {
		if n, err := strconv.ParseInt(maxBody, 10, 64); err == nil {
			config.Relay.MaxBodyBytes = n
		}
	}

	// Cooldown configuration
	setDuration("FORMRELAY_COOLDOWN_INTERVAL", &config.Cooldown.Interval)
	setDuration("FORMRELAY_COOLDOWN_SWEEP_INTERVAL", &config.Cooldown.SweepInterval)

	// Reputation configuration
	if strategy := os.Getenv("FORMRELAY_REPUTATION_STRATEGY"); strategy != "" {
		config.Reputation.Strategy = strategy
	}
	if endpoint := os.Getenv("FORMRELAY_REPUTATION_ENDPOINT"); endpoint != "" {
		config.Reputation.Endpoint = endpoint
	}
	if apiKey := os.Getenv("FORMRELAY_REPUTATION_API_KEY"); apiKey != "" {
		config.Reputation.APIKey = apiKey
	}
	setDuration("FORMRELAY_REPUTATION_TIMEOUT", &config.Reputation.Timeout)
	if threshold := os.Getenv("FORMRELAY_REPUTATION_SCORE_THRESHOLD"); threshold != "" {
		if f, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.Reputation.ScoreThreshold = f
		}
	}
	if asns := os.Getenv("FORMRELAY_REPUTATION_ASNS"); asns != "" {
		parsed := make([]int, 0)
		for _, part := range splitAndTrim(asns) {
			if n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(part), "AS")); err == nil {
				parsed = append(parsed, n)
			}
		}
		config.Reputation.ASNs = parsed
	}
	if operators := os.Getenv("FORMRELAY_REPUTATION_OPERATORS"); operators != "" {
		config.Reputation.Operators = splitAndTrim(operators)
	}
	if failClosed := os.Getenv("FORMRELAY_REPUTATION_FAIL_CLOSED"); failClosed != "" {
		if b, err := strconv.ParseBool(failClosed); err == nil {
			config.Reputation.FailClosed = &b
		}
	}
	if exempt := os.Getenv("FORMRELAY_REPUTATION_EXEMPT_NETWORKS"); exempt != "" {
		config.Reputation.ExemptNetworks = splitAndTrim(exempt)
	}

	// Time proxy configuration
	if upstream := os.Getenv("FORMRELAY_TIME_UPSTREAM_URL"); upstream != "" {
		config.TimeProxy.UpstreamURL = upstream
	}
	setDuration("FORMRELAY_TIME_TIMEOUT", &config.TimeProxy.Timeout)
	if rl := os.Getenv("FORMRELAY_TIME_RATE_LIMIT_ENABLED"); rl != "" {
		config.TimeProxy.RateLimit.Enabled = strings.ToLower(rl) == "true"
	}
	if rpm := os.Getenv("FORMRELAY_TIME_RATE_LIMIT_RPM"); rpm != "" {
		if n, err := strconv.Atoi(rpm); err == nil {
			config.TimeProxy.RateLimit.RequestsPerMinute = n
		}
	}
	if burst := os.Getenv("FORMRELAY_TIME_RATE_LIMIT_BURST"); burst != "" {
		if n, err := strconv.Atoi(burst); err == nil {
			config.TimeProxy.RateLimit.BurstSize = n
		}
	}

	// Journal configuration
	if journalType := os.Getenv("FORMRELAY_JOURNAL_TYPE"); journalType != "" {
		config.Journal.Type = journalType
	}
	if dsn := os.Getenv("FORMRELAY_JOURNAL_DSN"); dsn != "" {
		config.Journal.DSN = dsn
	}
	if maxEntries := os.Getenv("FORMRELAY_JOURNAL_MAX_ENTRIES"); maxEntries != "" {
		if n, err := strconv.Atoi(maxEntries); err == nil {
			config.Journal.MaxEntries = n
		}
	}
	if addr := os.Getenv("FORMRELAY_REDIS_ADDR"); addr != "" {
		config.Journal.Redis.Addr = addr
	}
	if password := os.Getenv("FORMRELAY_REDIS_PASSWORD"); password != "" {
		config.Journal.Redis.Password = password
	}
	if db := os.Getenv("FORMRELAY_REDIS_DB"); db != "" {
		if dbNum, err := strconv.Atoi(db); err == nil {
			config.Journal.Redis.DB = dbNum
		}
	}
	if key := os.Getenv("FORMRELAY_REDIS_KEY"); key != "" {
		config.Journal.Redis.Key = key
	}

	// Security configuration
	if token := os.Getenv("FORMRELAY_ADMIN_TOKEN"); token != "" {
		config.Security.AdminToken = token
	}

	// Logging configuration
	if level := os.Getenv("FORMRELAY_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("FORMRELAY_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("FORMRELAY_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}
	if filePath := os.Getenv("FORMRELAY_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("FORMRELAY_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}
	if path := os.Getenv("FORMRELAY_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}
	if port := os.Getenv("FORMRELAY_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Observability configuration
	if name := os.Getenv("FORMRELAY_SERVICE_NAME"); name != "" {
		config.Observability.ServiceName = name
	}
	if tracing := os.Getenv("FORMRELAY_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}
	if exporter := os.Getenv("FORMRELAY_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}
	if endpoint := os.Getenv("FORMRELAY_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Get default config with some example values
	config := models.NewDefaultConfig()
	config.Relay.WebhookURL = "https://discord.com/api/webhooks/your-id/your-token"
	config.Reputation.APIKey = "your-reputation-api-key"
	config.Reputation.ExemptNetworks = []string{"127.0.0.0/8", "::1/128"}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDuration overrides dst when the variable holds a valid duration.
func setDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// splitAndTrim splits a comma-separated list and drops empty items.
func splitAndTrim(s string) []string {
	parts := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
