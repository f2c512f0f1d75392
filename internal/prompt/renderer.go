// Package prompt renders the per-step prompt texts from externally supplied
// templates. Templates use {{key}} placeholders over a closed set of named
// substitutions per step; a template that references a key absent from its
// context fails with a TemplateError before anything is sent to the model.
// Placeholders are never silently substituted with an empty string.
package prompt

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aicats/pmdiag/internal/domain"
)

// placeholderPattern matches {{key}} substitution markers.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Context is the set of named substitutions available to one render call.
type Context map[string]string

// TemplateError reports a placeholder with no matching context key.
// It wraps domain.ErrTemplate for taxonomy classification.
type TemplateError struct {
	Step domain.Step
	Key  string
}

// Error identifies the offending placeholder and step.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s template references unknown key %q", e.Step, e.Key)
}

// Unwrap ties TemplateError into the shared failure taxonomy.
func (e *TemplateError) Unwrap() error { return domain.ErrTemplate }

// Render substitutes every placeholder in template from ctx.
// Returns a TemplateError on the first placeholder whose key is missing.
func Render(step domain.Step, template string, ctx Context) (string, error) {
	var missing *TemplateError
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := ctx[key]
		if !ok {
			if missing == nil {
				missing = &TemplateError{Step: step, Key: key}
			}
			return match
		}
		return value
	})
	if missing != nil {
		return "", missing
	}
	return rendered, nil
}

// Step1Context builds the substitution set for a PM1Raw call: the question,
// its rubric skills, and the respondent's answer and reason.
func Step1Context(meta domain.QuestionMeta, pair domain.AnswerPair) Context {
	return Context{
		"question_id":   meta.ID,
		"question_text": meta.Text,
		"primary_skill": meta.PrimarySkill,
		"sub_skill":     meta.SubSkill,
		"process_skill": meta.ProcessSkill,
		"answer":        pair.Answer,
		"reason":        pair.Reason,
	}
}

// Step2Context extends the step-1 context with the same question's PM1Raw
// result serialized as JSON, so the reverse-logic pass can compare.
func Step2Context(meta domain.QuestionMeta, pair domain.AnswerPair, prior domain.RawQuestionScore) (Context, error) {
	priorJSON, err := json.Marshal(prior)
	if err != nil {
		return nil, fmt.Errorf("marshal step-1 result for %s: %w", meta.ID, err)
	}
	ctx := Step1Context(meta, pair)
	ctx["step1_result"] = string(priorJSON)
	return ctx, nil
}

// Step3Context carries only already-computed step-1 artifacts: the aggregated
// scores and the per-question evidence. Original answer text is deliberately
// absent so step 3 cannot re-derive scores from it.
func Step3Context(agg *domain.AggregatedResult) (Context, error) {
	scores := struct {
		ScoresPrimary map[string]float64 `json:"scores_primary"`
		ScoresSub     map[string]float64 `json:"scores_sub"`
		Process       map[string]float64 `json:"process"`
		AES           map[string]float64 `json:"aes"`
		TotalScore    float64            `json:"total_score"`
	}{agg.ScoresPrimary, agg.ScoresSub, agg.Process, agg.AES, agg.TotalScore}

	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("marshal aggregated scores: %w", err)
	}
	perQuestionJSON, err := json.Marshal(agg.PerQuestion)
	if err != nil {
		return nil, fmt.Errorf("marshal per-question breakdown: %w", err)
	}
	return Context{
		"aggregated_scores": string(scoresJSON),
		"per_question":      string(perQuestionJSON),
		"total_score":       fmt.Sprintf("%.1f", agg.TotalScore),
	}, nil
}

// Step4Context carries the full PM01 Final payload for the consistency check.
func Step4Context(final *domain.AggregatedResult) (Context, error) {
	finalJSON, err := json.Marshal(final)
	if err != nil {
		return nil, fmt.Errorf("marshal PM01 final result: %w", err)
	}
	return Context{"pm01_final": string(finalJSON)}, nil
}
