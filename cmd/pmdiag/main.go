// Command pmdiag runs one diagnosis pass over all pending respondents in the
// store: four judgment steps per respondent (PM1Raw, PM5Raw, PM01 Final,
// PM05 Final), with per-step results, status markers, and logs written back.
//
// It takes no arguments. Exit code 0 means the pass completed, whatever the
// per-respondent outcomes; exit code 1 means bootstrap failed (settings,
// store, or run config unavailable).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aicats/pmdiag/internal/config"
	"github.com/aicats/pmdiag/internal/llm"
	"github.com/aicats/pmdiag/internal/pipeline"
	"github.com/aicats/pmdiag/internal/store"
	"github.com/aicats/pmdiag/internal/validation"
)

func main() {
	os.Exit(run())
}

func run() int {
	settings, err := config.Load()
	if err != nil {
		slog.Error("load settings", "error", err)
		return 1
	}

	logger := newLogger(settings.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(settings.StorePath)
	if err != nil {
		logger.Error("open store", "path", settings.StorePath, "error", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	runCfg, err := st.GetConfig(ctx)
	if err != nil {
		logger.Error("load run config", "error", err)
		return 1
	}
	questions, err := st.ListQuestionMeta(ctx)
	if err != nil {
		logger.Error("load question table", "error", err)
		return 1
	}

	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = runCfg.MaxRetries
	client, err := llm.NewClient(llm.Config{
		Transport: llm.TransportConfig{
			Endpoint: settings.Endpoint,
			APIKey:   settings.APIKey,
			Model:    settings.Model,
			Timeout:  settings.RequestTimeout,
		},
		Retry:             retry,
		RequestsPerSecond: settings.RequestsPerSecond,
		Burst:             settings.Burst,
	}, &http.Client{}, logger)
	if err != nil {
		logger.Error("build judgment client", "error", err)
		return 1
	}

	p := pipeline.New(client, st, runCfg, questions, logger)
	v := validation.New(runCfg.CompletionMarkers)
	runner := pipeline.NewRunner(st, p, v, runCfg, logger, settings.Concurrency)

	if _, err := runner.Run(ctx); err != nil {
		logger.Error("pass aborted", "error", err)
		return 1
	}
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
