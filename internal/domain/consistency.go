package domain

// ConsistencyStatus is the PM05 verdict over the PM01 result.
type ConsistencyStatus string

// Verdict values. Status is always recomputed from the numeric consistency
// score; a status string returned by the model is informational only.
const (
	// ConsistencyValid means the reverse-logic pass confirms the scores.
	ConsistencyValid ConsistencyStatus = "valid"

	// ConsistencyCaution means minor discrepancies were found.
	ConsistencyCaution ConsistencyStatus = "caution"

	// ConsistencyReEvaluate means the diagnosis should be re-run.
	ConsistencyReEvaluate ConsistencyStatus = "re-evaluate"
)

// Consistency score thresholds. Boundaries are closed above: exactly 4.5 is
// valid, exactly 3.5 is caution.
const (
	ConsistencyValidThreshold   = 4.5
	ConsistencyCautionThreshold = 3.5
)

// ConsistencyResult is the PM05 Final artifact.
type ConsistencyResult struct {
	// Status is derived from ConsistencyScore by the consistency evaluator.
	Status ConsistencyStatus `json:"status" validate:"required,oneof=valid caution re-evaluate"`

	// ConsistencyScore is the model-judged agreement scalar, 1..5.
	ConsistencyScore float64 `json:"consistency_score" validate:"min=1,max=5"`

	// Issues lists detected contradictions in the order reported.
	Issues []string `json:"issues"`

	// Summary is the model's free-text consistency assessment.
	Summary string `json:"summary"`
}

// Validate checks the score range and status value.
func (c *ConsistencyResult) Validate() error { return validate.Struct(c) }
