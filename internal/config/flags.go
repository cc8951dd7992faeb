package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "benchan [flags] url1 url2 url3...",
		Short:         "Synchronized distributed benchmark for Nchan servers",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Connection flags
	flags.StringSliceP("header", "H", nil, "Additional handshake header in key=value form")
	flags.Duration("handshake-timeout", DefaultHandshakeTimeout, "WebSocket handshake timeout")
	flags.Duration("ready-timeout", DefaultReadyTimeout, "How long to wait for READY after connecting")
	flags.Duration("idle-timeout", DefaultIdleTimeout, "Longest silence tolerated from a running endpoint")
	flags.Duration("write-timeout", DefaultWriteTimeout, "Timeout for sending a control command")
	flags.Int("connect-rate", 0, "Connections opened per second (0 means unlimited)")
	flags.Int("connect-retries", 0, "Retries per failed connection attempt")

	// Logging flags
	flags.BoolP("verbose", "v", false, "Verbose logging (same as --log-level debug)")
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")

	// Output flags
	flags.Bool("json-output", false, "Emit the report as JSON")
	flags.Bool("yaml-output", false, "Emit the report as YAML")
	flags.String("html-output", "", "Write an HTML report to the specified file path")
	flags.Bool("dashboard", false, "Show live terminal dashboard of endpoint phases")
	flags.Bool("strict", false, "Exit with status 2 when any endpoint failed after the start")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g., 'delivery_latency:p99 < 50')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of runs to sample (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Disable TLS towards the collector")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context into handshake headers")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	for name, dst := range map[string]*int{
		"connect-rate":    &cfg.ConnectRate,
		"connect-retries": &cfg.ConnectRetries,
	} {
		if fs.Changed(name) {
			val, err := fs.GetInt(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	if fs.Changed("handshake-timeout") {
		val, err := fs.GetDuration("handshake-timeout")
		if err != nil {
			return err
		}
		cfg.HandshakeTimeout = val
	}
	if fs.Changed("ready-timeout") {
		val, err := fs.GetDuration("ready-timeout")
		if err != nil {
			return err
		}
		cfg.ReadyTimeout = val
	}
	if fs.Changed("idle-timeout") {
		val, err := fs.GetDuration("idle-timeout")
		if err != nil {
			return err
		}
		cfg.IdleTimeout = val
	}
	if fs.Changed("write-timeout") {
		val, err := fs.GetDuration("write-timeout")
		if err != nil {
			return err
		}
		cfg.WriteTimeout = val
	}

	for name, dst := range map[string]*bool{
		"verbose":          &cfg.Verbose,
		"json-output":      &cfg.JSONOutput,
		"yaml-output":      &cfg.YAMLOutput,
		"dashboard":        &cfg.Dashboard,
		"strict":           &cfg.Strict,
		"tracing-insecure": &cfg.Tracing.Insecure,
	} {
		if fs.Changed(name) {
			val, err := fs.GetBool(name)
			if err != nil {
				return err
			}
			*dst = val
		}
	}

	for name, dst := range map[string]*string{
		"log-level":            &cfg.LogLevel,
		"log-format":           &cfg.LogFormat,
		"html-output":          &cfg.HTMLOutput,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	} {
		if fs.Changed(name) {
			val, err := fs.GetString(name)
			if err != nil {
				return err
			}
			*dst = strings.TrimSpace(val)
		}
	}

	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if fs.Changed("threshold") {
		thresholds, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = thresholds
	}

	return nil
}
