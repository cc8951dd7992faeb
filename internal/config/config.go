package config

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultReadyTimeout     = 30 * time.Second
	DefaultIdleTimeout      = 15 * time.Minute
	DefaultWriteTimeout     = 5 * time.Second
)

type Config struct {
	Endpoints        []string          `mapstructure:"endpoints"`
	Headers          map[string]string `mapstructure:"headers"`
	HandshakeTimeout time.Duration     `mapstructure:"handshake_timeout"`
	ReadyTimeout     time.Duration     `mapstructure:"ready_timeout"`
	IdleTimeout      time.Duration     `mapstructure:"idle_timeout"`
	WriteTimeout     time.Duration     `mapstructure:"write_timeout"`
	ConnectRate      int               `mapstructure:"connect_rate"`
	ConnectRetries   int               `mapstructure:"connect_retries"`
	Verbose          bool              `mapstructure:"verbose"`
	LogLevel         string            `mapstructure:"log_level"`
	LogFormat        string            `mapstructure:"log_format"`
	JSONOutput       bool              `mapstructure:"json_output"`
	YAMLOutput       bool              `mapstructure:"yaml_output"`
	HTMLOutput       string            `mapstructure:"html_output"`
	Dashboard        bool              `mapstructure:"dashboard"`
	Strict           bool              `mapstructure:"strict"`
	Thresholds       []string          `mapstructure:"thresholds"`
	Tracing          TracingConfig     `mapstructure:"tracing"`
	ConfigFile       string            `mapstructure:"-"`
}

// TracingConfig controls OpenTelemetry export. Tracing is off unless an
// endpoint is configured here or through OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"` // nil follows Enabled
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether trace context goes into handshake headers.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// HTTPHeaders returns the extra handshake headers.
func (c Config) HTTPHeaders() http.Header {
	h := make(http.Header, len(c.Headers))
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	return h
}

// SlogLevel maps the log settings to a slog level. --verbose wins over
// --log-level.
func (c Config) SlogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// NormalizeEndpoint trims raw and maps http(s) URLs to their websocket
// equivalents, since benchmark endpoints are addressed the same way a
// subscriber would be.
func NormalizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	default:
		return raw
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if len(c.Endpoints) == 0 {
		issues = append(issues, "at least one endpoint URL is required (use --help for usage information)")
	}
	for idx, ep := range c.Endpoints {
		if issue := validateEndpoint(ep); issue != "" {
			issues = append(issues, fmt.Sprintf("endpoints[%d]: %s", idx, issue))
		}
	}

	if c.HandshakeTimeout < 0 {
		issues = append(issues, "handshake_timeout must be >= 0")
	}
	if c.ReadyTimeout < 0 {
		issues = append(issues, "ready_timeout must be >= 0")
	}
	if c.IdleTimeout < 0 {
		issues = append(issues, "idle_timeout must be >= 0")
	}
	if c.WriteTimeout < 0 {
		issues = append(issues, "write_timeout must be >= 0")
	}
	if c.ConnectRate < 0 {
		issues = append(issues, "connect_rate must be >= 0")
	}
	if c.ConnectRetries < 0 {
		issues = append(issues, "connect_retries must be >= 0")
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}

	outputs := 0
	for _, on := range []bool{c.JSONOutput, c.YAMLOutput, c.Dashboard} {
		if on {
			outputs++
		}
	}
	if outputs > 1 {
		issues = append(issues, "dashboard, json-output and yaml-output are mutually exclusive")
	}

	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", c.Tracing.Protocol))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateEndpoint(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid URL %q: %v", raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Sprintf("unsupported scheme %q in %q (use ws, wss, http or https)", u.Scheme, raw)
	}
	if u.Host == "" {
		return fmt.Sprintf("missing host in %q", raw)
	}
	return ""
}
