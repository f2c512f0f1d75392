package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicats/pmdiag/internal/domain"
	"github.com/aicats/pmdiag/internal/parser"
)

func TestStatusForBoundaries(t *testing.T) {
	tests := []struct {
		score  float64
		status domain.ConsistencyStatus
	}{
		{score: 5.0, status: domain.ConsistencyValid},
		{score: 4.5, status: domain.ConsistencyValid},
		{score: 4.49999, status: domain.ConsistencyCaution},
		{score: 3.5, status: domain.ConsistencyCaution},
		{score: 3.49999, status: domain.ConsistencyReEvaluate},
		{score: 1.0, status: domain.ConsistencyReEvaluate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, StatusFor(tt.score), "score %v", tt.score)
	}
}

func TestEvaluateConsistencyRecomputesStatus(t *testing.T) {
	// The model said "valid" but the score says caution; the numeric score
	// is authoritative.
	status := "valid"
	score := 3.8
	issues := []string{"Q2の根拠が逆質問で揺らいだ"}
	summary := "軽微な乖離あり"

	result, err := EvaluateConsistency(&parser.Step4Payload{
		Status:           &status,
		ConsistencyScore: &score,
		Issues:           &issues,
		Summary:          &summary,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ConsistencyCaution, result.Status)
	assert.InDelta(t, 3.8, result.ConsistencyScore, 1e-9)
	assert.Equal(t, issues, result.Issues)
	assert.Equal(t, summary, result.Summary)
}

func TestEvaluateConsistencyRangeInvariant(t *testing.T) {
	status := "valid"
	score := 5.5
	issues := []string{}
	summary := "s"

	_, err := EvaluateConsistency(&parser.Step4Payload{
		Status:           &status,
		ConsistencyScore: &score,
		Issues:           &issues,
		Summary:          &summary,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrArithmeticInvariant)
}
