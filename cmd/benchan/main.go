package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/torosent/benchan/internal/config"
	"github.com/torosent/benchan/internal/conn"
	"github.com/torosent/benchan/internal/dashboard"
	"github.com/torosent/benchan/internal/metrics"
	"github.com/torosent/benchan/internal/output"
	"github.com/torosent/benchan/internal/runner"
	"github.com/torosent/benchan/internal/threshold"
	"github.com/torosent/benchan/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

const (
	exitOK      = 0
	exitError   = 1
	exitFailure = 2
)

func main() {
	var stdin io.Reader
	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		stdin = os.Stdin
	}
	code, err := run(os.Args[1:], stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	loader := config.NewLoader()
	if stdin != nil {
		loader = loader.WithStdin(stdin)
	}
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return exitOK, nil
		}
		return exitError, err
	}
	if err := cfg.Validate(); err != nil {
		return exitError, err
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return exitError, err
	}

	logWriter := stderr
	if cfg.Dashboard {
		logWriter = io.Discard
	}
	logger := newLogger(logWriter, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return exitError, err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := provider.Shutdown(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	connOpts := conn.Options{
		Headers:          cfg.HTTPHeaders(),
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		ReadyTimeout:     cfg.ReadyTimeout,
		IdleTimeout:      cfg.IdleTimeout,
		Logger:           logger,
	}

	progress := output.NewProgress(progressWriter(cfg, stdout, stderr))
	driver := runner.New(runner.Options{
		Endpoints:   cfg.Endpoints,
		Dialer:      runner.WebSocketDialer(connOpts, provider.ShouldPropagate()),
		ConnectRate: cfg.ConnectRate,
		Retry:       runner.BackoffPolicy(cfg.ConnectRetries),
		Logger:      logger,
		Tracer:      provider.Tracer(),
		OnNotice:    progress.Notice,
	})

	stopDisplay := func() {}
	if cfg.Dashboard {
		dash, err := dashboard.New(driver.Snapshot, dashboard.RunConfig{
			Servers:        len(driver.Endpoints()),
			ConnectRate:    cfg.ConnectRate,
			ConnectRetries: cfg.ConnectRetries,
			ReadyTimeout:   cfg.ReadyTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			ConfigFile:     cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return exitError, err
		}
		dash.Start()
		stopDisplay = dash.Stop
	} else if cfg.Verbose {
		reporter := output.NewProgressReporter(driver.Snapshot, progressInterval, stderr)
		reporter.Start()
		stopDisplay = reporter.Stop
	}

	progress.Connecting(len(driver.Endpoints()))
	report, runErr := driver.Run(ctx)
	stopDisplay()
	if runErr != nil {
		progress.Aborted(runErr)
		if report != nil {
			if err := emit(ctx, cfg, stdout, report, nil); err != nil {
				logger.Error("writing partial report failed", "error", err)
			}
		}
		return exitError, runErr
	}
	progress.Finished()

	results := threshold.NewEvaluator(thresholds).Evaluate(report)
	if err := emit(ctx, cfg, stdout, report, results); err != nil {
		return exitError, err
	}

	return exitCode(cfg, report, results)
}

// emit writes the report in the configured format and, when requested,
// the HTML report file.
func emit(ctx context.Context, cfg *config.Config, stdout io.Writer, report *metrics.Report, results []threshold.Result) error {
	switch {
	case cfg.JSONOutput:
		if err := output.PrintJSONReport(stdout, output.NewDocument(report, results)); err != nil {
			return err
		}
	case cfg.YAMLOutput:
		if err := output.PrintYAMLReport(stdout, output.NewDocument(report, results)); err != nil {
			return err
		}
	default:
		output.PrintReport(stdout, report)
		output.PrintThresholdResults(stdout, results)
	}

	if cfg.HTMLOutput != "" {
		err := output.WriteFile(ctx, cfg.HTMLOutput, func(w io.Writer) error {
			return output.GenerateHTMLReport(w, report, results)
		})
		if err != nil {
			return fmt.Errorf("write html report: %w", err)
		}
	}
	return nil
}

// exitCode maps a finished run to the process exit status.
func exitCode(cfg *config.Config, report *metrics.Report, results []threshold.Result) (int, error) {
	if !threshold.AllPassed(results) {
		failed := 0
		for _, r := range results {
			if !r.Pass {
				failed++
			}
		}
		return exitFailure, fmt.Errorf("%d of %d thresholds failed", failed, len(results))
	}
	if cfg.Strict && report != nil && report.Degraded {
		return exitFailure, fmt.Errorf("%d of %d servers failed", len(report.Failed), report.Servers)
	}
	return exitOK, nil
}

// progressWriter keeps machine-readable output on stdout clean.
func progressWriter(cfg *config.Config, stdout, stderr io.Writer) io.Writer {
	switch {
	case cfg.Dashboard:
		return io.Discard
	case cfg.JSONOutput || cfg.YAMLOutput:
		return stderr
	default:
		return stdout
	}
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
