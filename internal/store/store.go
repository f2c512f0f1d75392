// Package store defines the persistence contracts the diagnosis pipeline
// consumes and their SQLite implementation. The pipeline only sees the Reader
// and Writer interfaces; everything SQL lives behind them.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aicats/pmdiag/internal/domain"
)

// LogKind selects the destination log table.
type LogKind string

const (
	LogValidation LogKind = "validation"
	LogError      LogKind = "error"
	LogRun        LogKind = "run"
)

// LogEntry is one row written to a log table. Only the fields relevant to
// the kind are set; the rest stay empty.
type LogEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"run_id,omitempty"`
	RespondentID string    `json:"respondent_id,omitempty"`
	Step         string    `json:"step,omitempty"`
	Message      string    `json:"message"`

	// Run-summary fields, set for LogRun only.
	Processed int           `json:"processed,omitempty"`
	Succeeded int           `json:"succeeded,omitempty"`
	Failed    int           `json:"failed,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Reader loads the inputs of one diagnosis pass.
type Reader interface {
	// ListRespondents returns every respondent row in table order.
	ListRespondents(ctx context.Context) ([]domain.Respondent, error)

	// ListQuestionMeta returns the six-question rubric table.
	ListQuestionMeta(ctx context.Context) (domain.QuestionSet, error)

	// GetConfig returns the parsed run configuration.
	GetConfig(ctx context.Context) (*Config, error)

	// ListResultRespondentIDs returns the IDs that already have a result
	// row for the given step, used to skip already-processed respondents.
	ListResultRespondentIDs(ctx context.Context, step domain.Step) (map[string]bool, error)
}

// Writer persists pipeline outputs.
type Writer interface {
	// WriteResult persists one step artifact for a respondent as JSON.
	WriteResult(ctx context.Context, runID, respondentID string, step domain.Step, payload any) error

	// WriteLog appends an entry to the validation, error, or run log.
	WriteLog(ctx context.Context, kind LogKind, entry LogEntry) error

	// UpdateStatus sets the respondent's progress marker.
	UpdateStatus(ctx context.Context, respondentID, marker string) error
}

// Store is the full persistence surface.
type Store interface {
	Reader
	Writer
}

// Config is the run configuration loaded from the config table.
type Config struct {
	// Prompt templates per step. PromptPM5Final falls back to PromptPM5Raw
	// when the key is absent.
	PromptPM1Raw   string
	PromptPM5Raw   string
	PromptPM1Final string
	PromptPM5Final string

	// MaxRetries bounds judgment-call attempts per step invocation.
	MaxRetries int

	// Table name overrides; empty means the default table.
	RespondentsTable string
	QuestionsTable   string
	ResultsTable     string

	// DefaultTimeZone names the zone for run IDs and log timestamps.
	DefaultTimeZone string

	// CompletionMarkers are status values that exclude a respondent from
	// the pass.
	CompletionMarkers []string
}

// Default table names, overridable through config keys.
const (
	DefaultRespondentsTable = "respondents"
	DefaultQuestionsTable   = "questions"
	DefaultResultsTable     = "results"
)

// ErrConfigKeyMissing marks a required configuration key that has no value.
var ErrConfigKeyMissing = errors.New("required config key missing")

// ParseConfig builds a Config from raw key/value rows, applying defaults and
// the PM5-final fallback. Required keys: promptPM1Raw, promptPM5Raw,
// promptPM1Final.
func ParseConfig(raw map[string]string) (*Config, error) {
	cfg := &Config{
		MaxRetries:        3,
		RespondentsTable:  DefaultRespondentsTable,
		QuestionsTable:    DefaultQuestionsTable,
		ResultsTable:      DefaultResultsTable,
		DefaultTimeZone:   "Asia/Tokyo",
		CompletionMarkers: []string{"診断完了", "PM5Final完了"},
	}

	for _, key := range []string{"promptPM1Raw", "promptPM5Raw", "promptPM1Final"} {
		if raw[key] == "" {
			return nil, fmt.Errorf("%w: %s", ErrConfigKeyMissing, key)
		}
	}
	cfg.PromptPM1Raw = raw["promptPM1Raw"]
	cfg.PromptPM5Raw = raw["promptPM5Raw"]
	cfg.PromptPM1Final = raw["promptPM1Final"]

	cfg.PromptPM5Final = raw["promptPM5Final"]
	if cfg.PromptPM5Final == "" {
		cfg.PromptPM5Final = cfg.PromptPM5Raw
	}

	if v := raw["maxRetries"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("maxRetries must be a positive integer, got %q", v)
		}
		cfg.MaxRetries = n
	}

	if v := raw["respondentsTable"]; v != "" {
		cfg.RespondentsTable = v
	}
	if v := raw["questionsTable"]; v != "" {
		cfg.QuestionsTable = v
	}
	if v := raw["resultsTable"]; v != "" {
		cfg.ResultsTable = v
	}
	if v := raw["defaultTimeZone"]; v != "" {
		cfg.DefaultTimeZone = v
	}

	return cfg, nil
}

// Template returns the prompt template for a pipeline step.
func (c *Config) Template(step domain.Step) (string, error) {
	switch step {
	case domain.StepPM1Raw:
		return c.PromptPM1Raw, nil
	case domain.StepPM5Raw:
		return c.PromptPM5Raw, nil
	case domain.StepPM1Final:
		return c.PromptPM1Final, nil
	case domain.StepPM5Final:
		return c.PromptPM5Final, nil
	default:
		return "", fmt.Errorf("no template for step %d", int(step))
	}
}
