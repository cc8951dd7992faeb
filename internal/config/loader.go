package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, command-line arguments
// and standard input.
type Loader struct {
	stdin io.Reader
}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// WithStdin makes Load read additional newline separated endpoint URLs from
// r. Callers pass stdin only when it is not a terminal.
func (l *Loader) WithStdin(r io.Reader) *Loader {
	l.stdin = r
	return l
}

// Load parses command-line arguments and configuration files to produce a Config.
// Endpoint URLs come from the config file, then positional arguments, then
// stdin, in that order.
func (l *Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	stdinURLs, err := readURLs(l.stdin)
	if err != nil {
		return nil, fmt.Errorf("read endpoints from stdin: %w", err)
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" && len(stdinURLs) == 0 {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Headers:          map[string]string{},
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadyTimeout:     DefaultReadyTimeout,
		IdleTimeout:      DefaultIdleTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		LogLevel:         "warn",
		LogFormat:        "text",
		ConfigFile:       configPath,
		Tracing:          TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	raw := slices.Concat(cfg.Endpoints, flagSet.Args(), stdinURLs)
	cfg.Endpoints = nil
	for _, ep := range raw {
		if ep = NormalizeEndpoint(ep); ep != "" {
			cfg.Endpoints = append(cfg.Endpoints, ep)
		}
	}

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return cfg, nil
}

// readURLs splits r into whitespace separated URLs.
func readURLs(r io.Reader) ([]string, error) {
	if r == nil {
		return nil, nil
	}
	var urls []string
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		urls = append(urls, sc.Text())
	}
	return urls, sc.Err()
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "endpoints", "urls"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("endpoints: %w", err)
		}
		cfg.Endpoints = vals
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	durations := []struct {
		keys []string
		dst  *time.Duration
	}{
		{[]string{"handshaketimeout", "handshake_timeout", "handshake-timeout"}, &cfg.HandshakeTimeout},
		{[]string{"readytimeout", "ready_timeout", "ready-timeout"}, &cfg.ReadyTimeout},
		{[]string{"idletimeout", "idle_timeout", "idle-timeout"}, &cfg.IdleTimeout},
		{[]string{"writetimeout", "write_timeout", "write-timeout"}, &cfg.WriteTimeout},
	}
	for _, d := range durations {
		if raw, ok := lookupSetting(settings, d.keys...); ok {
			dur, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", settingName(d.keys), err)
			}
			*d.dst = dur
		}
	}

	ints := []struct {
		keys []string
		dst  *int
	}{
		{[]string{"connectrate", "connect_rate", "connect-rate"}, &cfg.ConnectRate},
		{[]string{"connectretries", "connect_retries", "connect-retries"}, &cfg.ConnectRetries},
	}
	for _, i := range ints {
		if raw, ok := lookupSetting(settings, i.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", settingName(i.keys), err)
			}
			*i.dst = val
		}
	}

	bools := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"verbose"}, &cfg.Verbose},
		{[]string{"jsonoutput", "json_output", "json-output"}, &cfg.JSONOutput},
		{[]string{"yamloutput", "yaml_output", "yaml-output"}, &cfg.YAMLOutput},
		{[]string{"dashboard"}, &cfg.Dashboard},
		{[]string{"strict"}, &cfg.Strict},
	}
	for _, b := range bools {
		if raw, ok := lookupSetting(settings, b.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", settingName(b.keys), err)
			}
			*b.dst = val
		}
	}

	strs := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"loglevel", "log_level", "log-level"}, &cfg.LogLevel},
		{[]string{"logformat", "log_format", "log-format"}, &cfg.LogFormat},
		{[]string{"htmloutput", "html_output", "html-output"}, &cfg.HTMLOutput},
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", settingName(s.keys), err)
			}
			*s.dst = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

// settingName picks the snake_case spelling from a candidate key list.
func settingName(keys []string) string {
	for _, k := range keys {
		if strings.Contains(k, "_") {
			return k
		}
	}
	return keys[0]
}

func applyTracingSettings(t *TracingConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}

	for _, s := range []struct {
		keys []string
		dst  *string
	}{
		{[]string{"endpoint"}, &t.Endpoint},
		{[]string{"protocol"}, &t.Protocol},
		{[]string{"servicename", "service_name", "service-name"}, &t.ServiceName},
	} {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", settingName(s.keys), err)
			}
			*s.dst = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
