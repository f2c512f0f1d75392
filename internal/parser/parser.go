// Package parser implements strict validation of model output for each of
// the four pipeline steps. Parsing tolerates surrounding prose by extracting
// the first well-formed JSON block (with one-shot repair of common damage:
// markdown fences, trailing commas), but is strict about content: missing
// required keys are failures, never defaulted, and out-of-range numbers are
// failures, never clamped.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aicats/pmdiag/internal/domain"
)

// SchemaError reports model output that does not match a step's expected
// shape. It wraps domain.ErrSchemaInvalid for taxonomy classification.
type SchemaError struct {
	Step   domain.Step
	Field  string
	Reason string
}

// Error identifies the step and offending field.
func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s response: field %s: %s", e.Step, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s response: %s", e.Step, e.Reason)
}

// Unwrap ties SchemaError into the shared failure taxonomy.
func (e *SchemaError) Unwrap() error { return domain.ErrSchemaInvalid }

// Step3Payload is the narrative part of the PM01 Final result. The numeric
// fields of the final result come from the scoring aggregator, never from
// the model, so step 3 parses narrative only.
type Step3Payload struct {
	TopStrengths    *[]string `json:"top_strengths"`
	TopWeaknesses   *[]string `json:"top_weaknesses"`
	OverallSummary  *string   `json:"overall_summary"`
	AIUseLevel      *string   `json:"ai_use_level"`
	Recommendations *[]string `json:"recommendations"`
}

// Step4Payload is the consistency judgment. The status string is parsed but
// treated as informational; the evaluator recomputes it from the score.
type Step4Payload struct {
	Status           *string   `json:"status"`
	ConsistencyScore *float64  `json:"consistency_score"`
	Issues           *[]string `json:"issues"`
	Summary          *string   `json:"summary"`
}

// Parse dispatches raw model output to the step's parser.
// The returned payload is *domain.RawQuestionScore for steps 1 and 2,
// *Step3Payload for step 3, and *Step4Payload for step 4.
func Parse(step domain.Step, raw string) (any, error) {
	switch step {
	case domain.StepPM1Raw:
		return ParseStep1(raw)
	case domain.StepPM5Raw:
		return ParseStep2(raw)
	case domain.StepPM1Final:
		return ParseStep3(raw)
	case domain.StepPM5Final:
		return ParseStep4(raw)
	default:
		return nil, &SchemaError{Step: step, Reason: "unknown step"}
	}
}

// rawScorePayload mirrors domain.RawQuestionScore with pointer fields so a
// missing key is distinguishable from a zero value.
type rawScorePayload struct {
	PrimaryScore   *float64 `json:"primary_score"`
	SubScore       *float64 `json:"sub_score"`
	ProcessScore   *float64 `json:"process_score"`
	AESClarity     *float64 `json:"aes_clarity"`
	AESLogic       *float64 `json:"aes_logic"`
	AESRelevance   *float64 `json:"aes_relevance"`
	Evidence       *string  `json:"evidence"`
	JudgmentReason *string  `json:"judgment_reason"`
	DifferenceNote *string  `json:"difference_note"`
}

// ParseStep1 parses one question's PM1Raw judgment.
func ParseStep1(raw string) (*domain.RawQuestionScore, error) {
	step := domain.StepPM1Raw
	var payload rawScorePayload
	if err := decode(step, raw, &payload); err != nil {
		return nil, err
	}

	score := &domain.RawQuestionScore{}
	if err := requireScore(step, "primary_score", payload.PrimaryScore, 0, &score.PrimaryScore); err != nil {
		return nil, err
	}
	if err := requireScore(step, "sub_score", payload.SubScore, 0, &score.SubScore); err != nil {
		return nil, err
	}
	if err := requireScore(step, "process_score", payload.ProcessScore, 0, &score.ProcessScore); err != nil {
		return nil, err
	}
	if err := requireScore(step, "aes_clarity", payload.AESClarity, 0, &score.AESClarity); err != nil {
		return nil, err
	}
	if err := requireScore(step, "aes_logic", payload.AESLogic, 0, &score.AESLogic); err != nil {
		return nil, err
	}
	if err := requireScore(step, "aes_relevance", payload.AESRelevance, 0, &score.AESRelevance); err != nil {
		return nil, err
	}
	if err := requireText(step, "evidence", payload.Evidence, &score.Evidence); err != nil {
		return nil, err
	}
	if err := requireText(step, "judgment_reason", payload.JudgmentReason, &score.JudgmentReason); err != nil {
		return nil, err
	}
	return score, nil
}

// ParseStep2 parses one question's PM5Raw judgment: the step-1 shape plus
// the difference note comparing against the step-1 score.
func ParseStep2(raw string) (*domain.RawQuestionScore, error) {
	step := domain.StepPM5Raw
	var payload rawScorePayload
	if err := decode(step, raw, &payload); err != nil {
		return nil, err
	}

	score := &domain.RawQuestionScore{}
	if err := requireScore(step, "primary_score", payload.PrimaryScore, 0, &score.PrimaryScore); err != nil {
		return nil, err
	}
	if err := requireScore(step, "sub_score", payload.SubScore, 0, &score.SubScore); err != nil {
		return nil, err
	}
	if err := requireScore(step, "process_score", payload.ProcessScore, 0, &score.ProcessScore); err != nil {
		return nil, err
	}
	if err := requireScore(step, "aes_clarity", payload.AESClarity, 0, &score.AESClarity); err != nil {
		return nil, err
	}
	if err := requireScore(step, "aes_logic", payload.AESLogic, 0, &score.AESLogic); err != nil {
		return nil, err
	}
	if err := requireScore(step, "aes_relevance", payload.AESRelevance, 0, &score.AESRelevance); err != nil {
		return nil, err
	}
	if err := requireText(step, "difference_note", payload.DifferenceNote, &score.DifferenceNote); err != nil {
		return nil, err
	}
	if payload.Evidence != nil {
		score.Evidence = strings.TrimSpace(*payload.Evidence)
	}
	if payload.JudgmentReason != nil {
		score.JudgmentReason = strings.TrimSpace(*payload.JudgmentReason)
	}
	return score, nil
}

// ParseStep3 parses the PM01 Final narrative payload.
func ParseStep3(raw string) (*Step3Payload, error) {
	step := domain.StepPM1Final
	var payload Step3Payload
	if err := decode(step, raw, &payload); err != nil {
		return nil, err
	}

	if payload.TopStrengths == nil {
		return nil, missingKey(step, "top_strengths")
	}
	if payload.TopWeaknesses == nil {
		return nil, missingKey(step, "top_weaknesses")
	}
	if payload.Recommendations == nil {
		return nil, missingKey(step, "recommendations")
	}
	var summary string
	if err := requireText(step, "overall_summary", payload.OverallSummary, &summary); err != nil {
		return nil, err
	}
	var level string
	if err := requireText(step, "ai_use_level", payload.AIUseLevel, &level); err != nil {
		return nil, err
	}
	valid := false
	for _, accepted := range domain.AIUseLevels() {
		if level == accepted {
			valid = true
			break
		}
	}
	if !valid {
		return nil, &SchemaError{Step: step, Field: "ai_use_level", Reason: fmt.Sprintf("unrecognized level %q", level)}
	}
	return &payload, nil
}

// ParseStep4 parses the PM05 Final consistency payload.
func ParseStep4(raw string) (*Step4Payload, error) {
	step := domain.StepPM5Final
	var payload Step4Payload
	if err := decode(step, raw, &payload); err != nil {
		return nil, err
	}

	if payload.ConsistencyScore == nil {
		return nil, missingKey(step, "consistency_score")
	}
	// consistency_score uses the tighter [1,5] range.
	if *payload.ConsistencyScore < 1 || *payload.ConsistencyScore > 5 {
		return nil, outOfRange(step, "consistency_score", *payload.ConsistencyScore)
	}
	if payload.Issues == nil {
		return nil, missingKey(step, "issues")
	}
	var summary string
	if err := requireText(step, "summary", payload.Summary, &summary); err != nil {
		return nil, err
	}
	if payload.Status == nil {
		return nil, missingKey(step, "status")
	}
	return &payload, nil
}

// decode extracts the first JSON block from raw and unmarshals it into dst.
func decode(step domain.Step, raw string, dst any) error {
	block, err := ExtractJSON(raw)
	if err != nil {
		return &SchemaError{Step: step, Reason: err.Error()}
	}
	if err := json.Unmarshal([]byte(block), dst); err != nil {
		repaired := repairCommonJSONIssues(block)
		if repaired == block {
			return &SchemaError{Step: step, Reason: fmt.Sprintf("malformed JSON: %v", err)}
		}
		if err := json.Unmarshal([]byte(repaired), dst); err != nil {
			return &SchemaError{Step: step, Reason: fmt.Sprintf("JSON still invalid after repair: %v", err)}
		}
	}
	return nil
}

func requireScore(step domain.Step, field string, value *float64, minimum float64, dst *float64) error {
	if value == nil {
		return missingKey(step, field)
	}
	if *value < minimum || *value > 5 {
		return outOfRange(step, field, *value)
	}
	*dst = *value
	return nil
}

func requireText(step domain.Step, field string, value *string, dst *string) error {
	if value == nil {
		return missingKey(step, field)
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return &SchemaError{Step: step, Field: field, Reason: "empty"}
	}
	*dst = trimmed
	return nil
}

func missingKey(step domain.Step, field string) error {
	return &SchemaError{Step: step, Field: field, Reason: "required key missing"}
}

func outOfRange(step domain.Step, field string, value float64) error {
	return &SchemaError{Step: step, Field: field, Reason: fmt.Sprintf("value %v out of range", value)}
}
