package domain

// Category weights for the total score. AES is tracked separately and never
// enters the weighted total.
const (
	// PrimaryWeight is the share of the primary-skill average in the total.
	PrimaryWeight = 0.60

	// SubWeight is the share of the sub-skill average in the total.
	SubWeight = 0.20

	// ProcessWeight is the share of the process-skill average in the total.
	ProcessWeight = 0.20
)

// Score level labels used for narrative classification only, never for
// control flow.
const (
	ScoreLevelStrong   = "強い"
	ScoreLevelStandard = "標準"
	ScoreLevelWeak     = "弱い"
)

// AI use levels the step-3 model call may assign.
const (
	AIUseLevelBasic    = "基礎"
	AIUseLevelStandard = "標準"
	AIUseLevelAdvanced = "高度"
)

// AIUseLevels returns the accepted ai_use_level values.
func AIUseLevels() []string {
	return []string{AIUseLevelBasic, AIUseLevelStandard, AIUseLevelAdvanced}
}

// QuestionBreakdown is the per-question slice of an aggregated result.
// Scores are carried over from the step-1 raw score; AESScore is the mean of
// the three AES components.
type QuestionBreakdown struct {
	PrimaryScore   float64 `json:"primary_score" validate:"min=0,max=5"`
	SubScore       float64 `json:"sub_score" validate:"min=0,max=5"`
	ProcessScore   float64 `json:"process_score" validate:"min=0,max=5"`
	AESScore       float64 `json:"aes_score" validate:"min=0,max=5"`
	Evidence       string  `json:"evidence,omitempty"`
	JudgmentReason string  `json:"judgment_reason,omitempty"`
}

// Narrative holds the free-text fields supplied by the step-3 model call.
// Everything numeric in AggregatedResult is computed deterministically; the
// narrative is the only model-authored part of the final PM01 result.
type Narrative struct {
	TopStrengths    []string `json:"top_strengths"`
	TopWeaknesses   []string `json:"top_weaknesses"`
	OverallSummary  string   `json:"overall_summary" validate:"required"`
	AIUseLevel      string   `json:"ai_use_level" validate:"required,oneof=基礎 標準 高度"`
	Recommendations []string `json:"recommendations"`
}

// AggregatedResult is the PM01 Final artifact: deterministic category
// averages and weighted total over the step-1 raw scores, combined with the
// step-3 narrative. TotalScore is a pure function of the six raw score sets
// and is never re-derived from answer text.
type AggregatedResult struct {
	// ScoresPrimary maps each primary skill to its average score.
	ScoresPrimary map[string]float64 `json:"scores_primary" validate:"required"`

	// ScoresSub maps each sub skill to its average score.
	ScoresSub map[string]float64 `json:"scores_sub" validate:"required"`

	// Process maps each process item to its average score.
	Process map[string]float64 `json:"process" validate:"required"`

	// AES maps each question ID to mean(clarity, logic, relevance).
	// Excluded from TotalScore.
	AES map[string]float64 `json:"aes" validate:"required"`

	// TotalScore is 0.6*avg(primary) + 0.2*avg(sub) + 0.2*avg(process),
	// kept at full precision; rounding happens only at display boundaries.
	TotalScore float64 `json:"total_score" validate:"min=0,max=5"`

	// PerQuestion carries the per-question breakdown keyed by question ID.
	PerQuestion map[string]QuestionBreakdown `json:"per_question" validate:"required"`

	// Embedded narrative fields keep the JSON shape flat, matching the
	// step-3 result row layout.
	Narrative
}

// Validate checks ranges on every aggregated value, including the
// per-question breakdowns and category averages.
func (a *AggregatedResult) Validate() error {
	if err := validate.Struct(a); err != nil {
		return err
	}
	for _, m := range []map[string]float64{a.ScoresPrimary, a.ScoresSub, a.Process, a.AES} {
		for field, v := range m {
			if v < 0 || v > 5 {
				return &InvariantError{Field: field, Value: v}
			}
		}
	}
	for qid, q := range a.PerQuestion {
		for _, v := range []float64{q.PrimaryScore, q.SubScore, q.ProcessScore, q.AESScore} {
			if v < 0 || v > 5 {
				return &InvariantError{Field: qid, Value: v}
			}
		}
	}
	return nil
}
