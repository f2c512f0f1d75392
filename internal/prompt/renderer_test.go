package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicats/pmdiag/internal/domain"
)

var testMeta = domain.QuestionMeta{
	Number:       1,
	ID:           "Q1",
	Text:         "直近のプロジェクトで最も難しかった意思決定は何ですか？",
	PrimarySkill: "意思決定力",
	SubSkill:     "リスク管理",
	ProcessSkill: "計画立案",
}

func TestRenderSubstitutesAllPlaceholders(t *testing.T) {
	template := "Q: {{question_text}}\nSkill: {{primary_skill}}\nA: {{answer}}\nWhy: {{reason}}"
	ctx := Step1Context(testMeta, domain.AnswerPair{Answer: "段階導入を選択", Reason: "影響範囲の限定"})

	out, err := Render(domain.StepPM1Raw, template, ctx)
	require.NoError(t, err)
	assert.Contains(t, out, testMeta.Text)
	assert.Contains(t, out, "意思決定力")
	assert.Contains(t, out, "段階導入を選択")
	assert.NotContains(t, out, "{{", "no placeholder may survive rendering")
}

func TestRenderToleratesPlaceholderWhitespace(t *testing.T) {
	out, err := Render(domain.StepPM1Raw, "id={{ question_id }}", Context{"question_id": "Q1"})
	require.NoError(t, err)
	assert.Equal(t, "id=Q1", out)
}

func TestRenderMissingKeyFails(t *testing.T) {
	_, err := Render(domain.StepPM1Final, "score: {{total_score}} notes: {{nonexistent}}", Context{"total_score": "4.3"})
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrTemplate, "missing key must classify as template error")

	var templateErr *TemplateError
	require.ErrorAs(t, err, &templateErr)
	assert.Equal(t, "nonexistent", templateErr.Key)
	assert.Equal(t, domain.StepPM1Final, templateErr.Step)
}

func TestRenderEmptyValueIsNotMissing(t *testing.T) {
	// An empty string present in the context is a legitimate substitution;
	// only an absent key fails.
	out, err := Render(domain.StepPM1Raw, "[{{answer}}]", Context{"answer": ""})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestStep2ContextCarriesPriorResult(t *testing.T) {
	prior := domain.RawQuestionScore{PrimaryScore: 4, SubScore: 3, ProcessScore: 5, Evidence: "引用部分"}
	ctx, err := Step2Context(testMeta, domain.AnswerPair{Answer: "回答"}, prior)
	require.NoError(t, err)
	assert.Contains(t, ctx["step1_result"], `"primary_score":4`)
	assert.Contains(t, ctx["step1_result"], "引用部分")
	assert.Equal(t, "Q1", ctx["question_id"], "step-2 context keeps the step-1 keys")
}

func TestStep3ContextExcludesAnswerText(t *testing.T) {
	agg := &domain.AggregatedResult{
		ScoresPrimary: map[string]float64{"意思決定力": 4.5},
		ScoresSub:     map[string]float64{"リスク管理": 4.0},
		Process:       map[string]float64{"計画立案": 3.0},
		AES:           map[string]float64{"Q1": 4.0},
		TotalScore:    4.1,
		PerQuestion: map[string]domain.QuestionBreakdown{
			"Q1": {PrimaryScore: 4.5, SubScore: 4, ProcessScore: 3, AESScore: 4, Evidence: "根拠"},
		},
	}

	ctx, err := Step3Context(agg)
	require.NoError(t, err)

	_, hasAnswer := ctx["answer"]
	assert.False(t, hasAnswer, "step 3 must not see raw answer text")
	assert.Equal(t, "4.1", ctx["total_score"])
	assert.Contains(t, ctx["aggregated_scores"], "意思決定力")
	assert.Contains(t, ctx["per_question"], "根拠")
}

func TestStep4ContextCarriesFullFinalPayload(t *testing.T) {
	agg := &domain.AggregatedResult{
		ScoresPrimary: map[string]float64{"意思決定力": 4.5},
		ScoresSub:     map[string]float64{"リスク管理": 4.0},
		Process:       map[string]float64{"計画立案": 3.0},
		AES:           map[string]float64{"Q1": 4.0},
		TotalScore:    4.1,
		PerQuestion:   map[string]domain.QuestionBreakdown{},
		Narrative: domain.Narrative{
			OverallSummary: "全体的に高水準",
			AIUseLevel:     domain.AIUseLevelStandard,
		},
	}

	ctx, err := Step4Context(agg)
	require.NoError(t, err)
	assert.Contains(t, ctx["pm01_final"], `"total_score":4.1`)
	assert.Contains(t, ctx["pm01_final"], "全体的に高水準")
}
