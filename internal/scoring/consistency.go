package scoring

import (
	"github.com/aicats/pmdiag/internal/domain"
	"github.com/aicats/pmdiag/internal/parser"
)

// StatusFor maps a consistency score to its verdict. Boundaries are closed
// above: exactly 4.5 is valid and exactly 3.5 is caution.
func StatusFor(score float64) domain.ConsistencyStatus {
	switch {
	case score >= domain.ConsistencyValidThreshold:
		return domain.ConsistencyValid
	case score >= domain.ConsistencyCautionThreshold:
		return domain.ConsistencyCaution
	default:
		return domain.ConsistencyReEvaluate
	}
}

// EvaluateConsistency builds the PM05 Final result from the step-4 payload.
// The status is always recomputed from the numeric score; the model-returned
// status string is never trusted verbatim. The parser already enforced the
// [1,5] range, so a violation here means a programming error upstream.
func EvaluateConsistency(payload *parser.Step4Payload) (*domain.ConsistencyResult, error) {
	score := *payload.ConsistencyScore
	if score < 1 || score > 5 {
		return nil, &domain.InvariantError{Field: "consistency_score", Value: score}
	}
	return &domain.ConsistencyResult{
		Status:           StatusFor(score),
		ConsistencyScore: score,
		Issues:           *payload.Issues,
		Summary:          *payload.Summary,
	}, nil
}
