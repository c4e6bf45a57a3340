// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Transports the MCP server can listen on.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config holds all application configuration.
type Config struct {
	// Workspace settings.
	Workspace string // Project directory; empty means resolve upward from the working directory.
	AutoInit  bool   // Create the workspace on startup if it does not exist.
	Actor     string // Identity recorded on events when the caller supplies none.

	// MCP transport settings.
	Transport       string // "stdio" or "http"
	Addr            string // Listen address for the http transport.
	ShutdownTimeout time.Duration
	RateLimitRPS    float64 // Sustained HTTP requests per second per caller; 0 disables limiting.
	RateLimitBurst  int

	// OTEL settings.
	OTELEndpoint string
	ServiceName  string
	OTELInsecure bool

	// Operational settings.
	LogLevel        string
	ListConcurrency int // Documents decoded in parallel when listing runs and node results.
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	autoInit, err := envBool("COGNETIVY_AUTO_INIT", true)
	collect(err)
	shutdown, err := envDuration("COGNETIVY_SHUTDOWN_TIMEOUT", 10*time.Second)
	collect(err)
	insecure, err := envBool("COGNETIVY_OTEL_INSECURE", false)
	collect(err)
	listConcurrency, err := envInt("COGNETIVY_LIST_CONCURRENCY", 8)
	collect(err)
	rateRPS, err := envFloat("COGNETIVY_RATE_LIMIT_RPS", 0)
	collect(err)
	rateBurst, err := envInt("COGNETIVY_RATE_LIMIT_BURST", 20)
	collect(err)

	cfg := Config{
		Workspace:       envStr("COGNETIVY_WORKSPACE", ""),
		AutoInit:        autoInit,
		Actor:           envStr("COGNETIVY_ACTOR", "agent"),
		Transport:       strings.ToLower(envStr("COGNETIVY_MCP_TRANSPORT", TransportStdio)),
		Addr:            envStr("COGNETIVY_MCP_ADDR", ":8765"),
		ShutdownTimeout: shutdown,
		RateLimitRPS:    rateRPS,
		RateLimitBurst:  rateBurst,
		OTELEndpoint:    envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:     envStr("OTEL_SERVICE_NAME", "cognetivy"),
		OTELInsecure:    insecure,
		LogLevel:        envStr("COGNETIVY_LOG_LEVEL", "info"),
		ListConcurrency: listConcurrency,
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportStdio:
	case TransportHTTP:
		if c.Addr == "" {
			return fmt.Errorf("config: COGNETIVY_MCP_ADDR is required for the http transport")
		}
	default:
		return fmt.Errorf("config: COGNETIVY_MCP_TRANSPORT must be %q or %q, got %q", TransportStdio, TransportHTTP, c.Transport)
	}
	if strings.TrimSpace(c.Actor) == "" {
		return fmt.Errorf("config: COGNETIVY_ACTOR must not be blank")
	}
	if c.ListConcurrency <= 0 {
		return fmt.Errorf("config: COGNETIVY_LIST_CONCURRENCY must be positive")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("config: COGNETIVY_RATE_LIMIT_RPS must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("config: COGNETIVY_RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: COGNETIVY_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
