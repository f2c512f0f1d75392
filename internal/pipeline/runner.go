package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aicats/pmdiag/internal/domain"
	"github.com/aicats/pmdiag/internal/store"
	"github.com/aicats/pmdiag/internal/validation"
)

// Summary is the outcome of one full pass, always produced even when every
// respondent fails.
type Summary struct {
	RunID     string
	Processed int
	Succeeded int
	Failed    int
	Rejected  int
	Skipped   int
	Duration  time.Duration
}

// Runner executes one diagnosis pass: load inputs, filter and validate
// respondents, run the pipeline for each, and write the run summary.
type Runner struct {
	store       store.Store
	pipeline    *Pipeline
	validator   *validation.Validator
	config      *store.Config
	logger      *slog.Logger
	concurrency int
}

// NewRunner wires a pass runner. Concurrency below 2 means sequential
// processing, the default.
func NewRunner(st store.Store, p *Pipeline, v *validation.Validator, cfg *store.Config, logger *slog.Logger, concurrency int) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:       st,
		pipeline:    p,
		validator:   v,
		config:      cfg,
		logger:      logger.With("component", "runner"),
		concurrency: concurrency,
	}
}

// NewRunID builds a run identifier from the current time in the configured
// zone, e.g. RUN_20250831_142503. An unknown zone falls back to UTC.
func NewRunID(zone string) string {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = time.UTC
	}
	return "RUN_" + time.Now().In(loc).Format("20060102_150405")
}

// Run performs one pass over all pending respondents. Individual failures
// are logged and counted; the pass keeps going. Only load failures (store
// unreachable, config or question table invalid) return an error.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	respondents, err := r.store.ListRespondents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load respondents: %w", err)
	}

	processed, err := r.store.ListResultRespondentIDs(ctx, domain.StepPM1Raw)
	if err != nil {
		return nil, fmt.Errorf("load processed set: %w", err)
	}

	runID := NewRunID(r.config.DefaultTimeZone)
	start := time.Now()
	summary := &Summary{RunID: runID}
	r.logger.InfoContext(ctx, "pass starting", "run_id", runID, "respondents", len(respondents))

	var (
		mu sync.Mutex
		g  *errgroup.Group
	)
	g, gctx := errgroup.WithContext(ctx)
	if r.concurrency > 1 {
		g.SetLimit(r.concurrency)
	} else {
		g.SetLimit(1)
	}

	for i := range respondents {
		resp := &respondents[i]

		if processed[resp.ID] {
			summary.Skipped++
			r.logger.DebugContext(ctx, "already processed, skipping",
				"run_id", runID, "respondent", resp.ID)
			continue
		}

		if err := r.validator.Validate(resp); err != nil {
			var rejection *validation.Rejection
			if errors.As(err, &rejection) && rejection.AlreadyComplete {
				// Already diagnosed in an earlier pass; not an error, and
				// the terminal marker must not be overwritten.
				summary.Skipped++
				continue
			}
			summary.Rejected++
			r.rejectRespondent(ctx, runID, resp, err)
			continue
		}

		g.Go(func() error {
			record := r.pipeline.Run(gctx, runID, resp)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			if record.Succeeded() {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
			return nil
		})
	}

	// Worker funcs never return errors; Wait only observes context death.
	_ = g.Wait()

	summary.Duration = time.Since(start)
	r.writeSummary(ctx, summary)
	return summary, nil
}

// rejectRespondent records a validation rejection: validation-log row,
// rejection marker, and a structured log line.
func (r *Runner) rejectRespondent(ctx context.Context, runID string, resp *domain.Respondent, cause error) {
	r.logger.WarnContext(ctx, "respondent rejected",
		"run_id", runID, "respondent", resp.ID, "row", resp.RowIndex, "reasons", cause)

	if err := r.store.WriteLog(ctx, store.LogValidation, store.LogEntry{
		RunID:        runID,
		RespondentID: resp.ID,
		Message:      cause.Error(),
	}); err != nil {
		r.logger.ErrorContext(ctx, "validation log write failed", "error", err)
	}
	if resp.ID == "" {
		return
	}
	if err := r.store.UpdateStatus(ctx, resp.ID, RejectedMarker); err != nil {
		r.logger.ErrorContext(ctx, "status update failed", "respondent", resp.ID, "error", err)
	}
}

// writeSummary persists the run-log row and emits the summary line. Uses a
// detached context so a cancelled pass still leaves its trace.
func (r *Runner) writeSummary(ctx context.Context, s *Summary) {
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := r.store.WriteLog(logCtx, store.LogRun, store.LogEntry{
		RunID:     s.RunID,
		Processed: s.Processed,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Duration:  s.Duration,
		Message:   fmt.Sprintf("rejected=%d skipped=%d", s.Rejected, s.Skipped),
	}); err != nil {
		r.logger.ErrorContext(ctx, "run log write failed", "error", err)
	}

	r.logger.InfoContext(ctx, "pass complete",
		"run_id", s.RunID,
		"processed", s.Processed,
		"succeeded", s.Succeeded,
		"failed", s.Failed,
		"rejected", s.Rejected,
		"skipped", s.Skipped,
		"duration", s.Duration)
}
