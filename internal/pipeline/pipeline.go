// Package pipeline orchestrates the four-step diagnosis for each respondent:
// PM1Raw and PM5Raw per-question scoring, PM01 Final aggregation plus
// narrative, and the PM05 Final consistency verdict. Progress is an explicit
// state machine; a later failure never undoes earlier artifacts, and steps 3
// and 4 consume only typed results of earlier steps, never raw answer text.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aicats/pmdiag/internal/domain"
	"github.com/aicats/pmdiag/internal/llm"
	"github.com/aicats/pmdiag/internal/parser"
	"github.com/aicats/pmdiag/internal/prompt"
	"github.com/aicats/pmdiag/internal/scoring"
	"github.com/aicats/pmdiag/internal/store"
)

// JudgmentClient is the model-call surface the pipeline depends on.
// *llm.Client satisfies it; tests substitute fakes.
type JudgmentClient interface {
	Judge(ctx context.Context, req *llm.Request) (any, error)
}

// Pipeline runs the diagnosis steps for one respondent at a time.
// Safe for concurrent use; all per-run state lives in the record.
type Pipeline struct {
	client    JudgmentClient
	writer    store.Writer
	config    *store.Config
	questions domain.QuestionSet
	logger    *slog.Logger
}

// New creates a pipeline over a validated question set and run config.
func New(client JudgmentClient, writer store.Writer, cfg *store.Config, questions domain.QuestionSet, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		client:    client,
		writer:    writer,
		config:    cfg,
		questions: questions,
		logger:    logger.With("component", "pipeline"),
	}
}

// Run executes steps 1..4 for an already-validated respondent and returns the
// run record, terminal in all cases. Cancellation is honored between steps;
// an in-flight step finishes or fails on its own.
func (p *Pipeline) Run(ctx context.Context, runID string, r *domain.Respondent) *domain.DiagnosticRunRecord {
	record := &domain.DiagnosticRunRecord{
		RunID:        runID,
		RespondentID: r.ID,
		State:        domain.StateValidated,
		StartedAt:    time.Now(),
	}

	for _, step := range stepOrder {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, record, step, err)
		}

		var err error
		switch step {
		case domain.StepPM1Raw:
			record.Step1, err = p.scoreQuestions(ctx, step, r, nil)
		case domain.StepPM5Raw:
			record.Step2, err = p.scoreQuestions(ctx, step, r, record.Step1)
		case domain.StepPM1Final:
			record.PM01Final, err = p.finalizePM01(ctx, r.ID, record.Step1)
		case domain.StepPM5Final:
			record.PM05Final, err = p.finalizePM05(ctx, r.ID, record.PM01Final)
		}
		if err != nil {
			return p.fail(ctx, record, step, err)
		}

		if err := p.commitStep(ctx, record, step); err != nil {
			return p.fail(ctx, record, step, err)
		}
	}

	record.Outcome = domain.Outcome{Kind: domain.OutcomeSucceeded}
	record.CompletedAt = time.Now()
	p.logger.InfoContext(ctx, "diagnosis complete",
		"run_id", runID, "respondent", r.ID,
		"total_score", record.PM01Final.TotalScore,
		"consistency", record.PM05Final.Status)
	return record
}

// scoreQuestions runs one per-question judgment pass (step 1 or 2) over
// Q1..Q6 in order. For step 2 the same question's step-1 result is included
// in the prompt context.
func (p *Pipeline) scoreQuestions(ctx context.Context, step domain.Step, r *domain.Respondent, prior domain.ScoreSet) (domain.ScoreSet, error) {
	template, err := p.config.Template(step)
	if err != nil {
		return nil, err
	}

	scores := make(domain.ScoreSet, domain.QuestionCount)
	for _, qid := range domain.QuestionIDs() {
		meta := p.questions[qid]
		pair := r.Answer(qid)

		var pctx prompt.Context
		if step == domain.StepPM1Raw {
			pctx = prompt.Step1Context(meta, pair)
		} else {
			pctx, err = prompt.Step2Context(meta, pair, prior[qid])
			if err != nil {
				return nil, err
			}
		}

		rendered, err := prompt.Render(step, template, pctx)
		if err != nil {
			return nil, err
		}

		parsed, err := p.client.Judge(ctx, &llm.Request{
			RespondentID: r.ID,
			QuestionID:   qid,
			Step:         step,
			Prompt:       rendered,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", qid, err)
		}
		score, ok := parsed.(*domain.RawQuestionScore)
		if !ok {
			return nil, &domain.InvariantError{Field: qid, Message: fmt.Sprintf("unexpected %s payload type %T", step, parsed)}
		}
		scores[qid] = *score
	}
	return scores, nil
}

// finalizePM01 aggregates the step-1 scores and asks the model for the
// narrative half of the PM01 Final result.
func (p *Pipeline) finalizePM01(ctx context.Context, respondentID string, step1 domain.ScoreSet) (*domain.AggregatedResult, error) {
	agg, err := scoring.Aggregate(step1, p.questions)
	if err != nil {
		return nil, err
	}

	template, err := p.config.Template(domain.StepPM1Final)
	if err != nil {
		return nil, err
	}
	pctx, err := prompt.Step3Context(agg)
	if err != nil {
		return nil, err
	}
	rendered, err := prompt.Render(domain.StepPM1Final, template, pctx)
	if err != nil {
		return nil, err
	}

	parsed, err := p.client.Judge(ctx, &llm.Request{
		RespondentID: respondentID,
		Step:         domain.StepPM1Final,
		Prompt:       rendered,
	})
	if err != nil {
		return nil, err
	}
	narrative, ok := parsed.(*parser.Step3Payload)
	if !ok {
		return nil, &domain.InvariantError{Field: "pm01_final", Message: fmt.Sprintf("unexpected payload type %T", parsed)}
	}

	agg.Narrative = domain.Narrative{
		TopStrengths:    *narrative.TopStrengths,
		TopWeaknesses:   *narrative.TopWeaknesses,
		OverallSummary:  *narrative.OverallSummary,
		AIUseLevel:      *narrative.AIUseLevel,
		Recommendations: *narrative.Recommendations,
	}
	if err := agg.Validate(); err != nil {
		return nil, err
	}
	return agg, nil
}

// finalizePM05 asks the model for the consistency judgment over the PM01
// Final result and recomputes the verdict from the numeric score.
func (p *Pipeline) finalizePM05(ctx context.Context, respondentID string, final *domain.AggregatedResult) (*domain.ConsistencyResult, error) {
	template, err := p.config.Template(domain.StepPM5Final)
	if err != nil {
		return nil, err
	}
	pctx, err := prompt.Step4Context(final)
	if err != nil {
		return nil, err
	}
	rendered, err := prompt.Render(domain.StepPM5Final, template, pctx)
	if err != nil {
		return nil, err
	}

	parsed, err := p.client.Judge(ctx, &llm.Request{
		RespondentID: respondentID,
		Step:         domain.StepPM5Final,
		Prompt:       rendered,
	})
	if err != nil {
		return nil, err
	}
	payload, ok := parsed.(*parser.Step4Payload)
	if !ok {
		return nil, &domain.InvariantError{Field: "pm05_final", Message: fmt.Sprintf("unexpected payload type %T", parsed)}
	}
	return scoring.EvaluateConsistency(payload)
}

// commitStep persists the step artifact, advances the state machine, and
// writes the step's status marker.
func (p *Pipeline) commitStep(ctx context.Context, record *domain.DiagnosticRunRecord, step domain.Step) error {
	var payload any
	switch step {
	case domain.StepPM1Raw:
		payload = record.Step1
	case domain.StepPM5Raw:
		payload = record.Step2
	case domain.StepPM1Final:
		payload = record.PM01Final
	case domain.StepPM5Final:
		payload = record.PM05Final
	}

	if err := p.writer.WriteResult(ctx, record.RunID, record.RespondentID, step, payload); err != nil {
		return err
	}

	next, err := advance(record.State, step)
	if err != nil {
		return err
	}
	record.State = next

	if err := p.writer.UpdateStatus(ctx, record.RespondentID, stepMarkers[step]); err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "step complete",
		"run_id", record.RunID, "respondent", record.RespondentID, "step", step.String())
	return nil
}

// fail finalizes the record for a step failure, logging it and appending an
// error-log row. Earlier artifacts and status markers stay as committed.
func (p *Pipeline) fail(ctx context.Context, record *domain.DiagnosticRunRecord, step domain.Step, cause error) *domain.DiagnosticRunRecord {
	record.State = domain.StateFailed
	record.Outcome = domain.Outcome{
		Kind:       domain.OutcomeStepFailed,
		FailedStep: step,
		Reason:     cause.Error(),
	}
	record.CompletedAt = time.Now()

	p.logger.ErrorContext(ctx, "step failed",
		"run_id", record.RunID, "respondent", record.RespondentID,
		"step", step.String(), "error", cause)

	// Logging must survive the cancellation that may have caused the failure.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.writer.WriteLog(logCtx, store.LogError, store.LogEntry{
		RunID:        record.RunID,
		RespondentID: record.RespondentID,
		Step:         step.String(),
		Message:      cause.Error(),
	}); err != nil {
		p.logger.ErrorContext(ctx, "error log write failed", "error", err)
	}
	return record
}
