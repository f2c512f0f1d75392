package parser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicats/pmdiag/internal/domain"
)

const validStep1JSON = `{
	"primary_score": 4,
	"sub_score": 3.5,
	"process_score": 5,
	"aes_clarity": 4,
	"aes_logic": 4.5,
	"aes_relevance": 3,
	"evidence": "「段階導入を選んだ」という記述",
	"judgment_reason": "判断基準が明確で一貫している"
}`

func TestParseStep1Valid(t *testing.T) {
	score, err := ParseStep1(validStep1JSON)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, score.PrimaryScore, 1e-9)
	assert.InDelta(t, 3.5, score.SubScore, 1e-9)
	assert.InDelta(t, 5.0, score.ProcessScore, 1e-9)
	assert.Equal(t, "「段階導入を選んだ」という記述", score.Evidence)
}

func TestParseStep1RoundTrip(t *testing.T) {
	// Re-serializing a parsed score and parsing it again must reproduce the
	// same values; parsing loses nothing and invents nothing.
	score, err := ParseStep1(validStep1JSON)
	require.NoError(t, err)

	encoded, err := json.Marshal(score)
	require.NoError(t, err)

	again, err := ParseStep1(string(encoded))
	require.NoError(t, err)
	assert.Equal(t, score, again)
}

func TestParseStep1ToleratesSurroundingProse(t *testing.T) {
	wrapped := "Here is my evaluation:\n\n" + validStep1JSON + "\n\nLet me know if you need anything else."
	score, err := ParseStep1(wrapped)
	require.NoError(t, err, "prose around the JSON block must be tolerated")
	assert.InDelta(t, 4.0, score.PrimaryScore, 1e-9)
}

func TestParseStep1ToleratesMarkdownFence(t *testing.T) {
	fenced := "```json\n" + validStep1JSON + "\n```"
	score, err := ParseStep1(fenced)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, score.AESLogic, 1e-9)
}

func TestParseStep1RepairsTrailingComma(t *testing.T) {
	damaged := `{"primary_score": 4, "sub_score": 3, "process_score": 2,
		"aes_clarity": 4, "aes_logic": 4, "aes_relevance": 4,
		"evidence": "e", "judgment_reason": "r",}`
	score, err := ParseStep1(damaged)
	require.NoError(t, err, "a single trailing comma is repairable")
	assert.InDelta(t, 2.0, score.ProcessScore, 1e-9)
}

func TestParseStep1RepairsMissingFinalBrace(t *testing.T) {
	truncated := `{"primary_score": 4, "sub_score": 3, "process_score": 2,
		"aes_clarity": 4, "aes_logic": 4, "aes_relevance": 4,
		"evidence": "e", "judgment_reason": "r"`
	score, err := ParseStep1(truncated)
	require.NoError(t, err, "a truncated closing brace is repairable")
	assert.InDelta(t, 4.0, score.PrimaryScore, 1e-9)
}

func TestParseStep1MissingKeyFails(t *testing.T) {
	missing := `{"primary_score": 4, "sub_score": 3, "process_score": 2,
		"aes_clarity": 4, "aes_logic": 4, "aes_relevance": 4,
		"evidence": "e"}`
	_, err := ParseStep1(missing)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrSchemaInvalid)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "judgment_reason", schemaErr.Field, "missing keys fail, never defaulted")
}

func TestParseStep1OutOfRangeFails(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{name: "above range", field: "primary_score", value: "5.1"},
		{name: "below range", field: "sub_score", value: "-0.5"},
		{name: "absurd", field: "aes_clarity", value: "42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"primary_score": 4, "sub_score": 3, "process_score": 2,
				"aes_clarity": 4, "aes_logic": 4, "aes_relevance": 4,
				"evidence": "e", "judgment_reason": "r", "` + tt.field + `": ` + tt.value + `}`
			_, err := ParseStep1(payload)
			require.Error(t, err, "out-of-range values fail, never clamped")

			var schemaErr *SchemaError
			require.ErrorAs(t, err, &schemaErr)
			assert.Equal(t, tt.field, schemaErr.Field)
		})
	}
}

func TestParseStep1NoJSONFails(t *testing.T) {
	_, err := ParseStep1("I cannot evaluate this answer.")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
}

func TestParseStep2RequiresDifferenceNote(t *testing.T) {
	_, err := ParseStep2(validStep1JSON)
	require.Error(t, err, "step 2 without difference_note must fail")

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "difference_note", schemaErr.Field)
	assert.Equal(t, domain.StepPM5Raw, schemaErr.Step)
}

func TestParseStep2Valid(t *testing.T) {
	payload := `{"primary_score": 3, "sub_score": 3, "process_score": 3,
		"aes_clarity": 3, "aes_logic": 3, "aes_relevance": 3,
		"difference_note": "逆質問では根拠の弱さが露呈し1点低い"}`
	score, err := ParseStep2(payload)
	require.NoError(t, err)
	assert.Equal(t, "逆質問では根拠の弱さが露呈し1点低い", score.DifferenceNote)
	assert.Empty(t, score.Evidence, "evidence is optional for step 2")
}

func TestParseStep3Valid(t *testing.T) {
	payload := `{
		"top_strengths": ["意思決定力", "計画立案"],
		"top_weaknesses": ["リスク管理"],
		"overall_summary": "計画面は強いがリスク想定に改善余地がある",
		"ai_use_level": "標準",
		"recommendations": ["リスク洗い出しの演習を行う"]
	}`
	result, err := ParseStep3(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"意思決定力", "計画立案"}, *result.TopStrengths)
	assert.Equal(t, domain.AIUseLevelStandard, *result.AIUseLevel)
}

func TestParseStep3UnknownAIUseLevelFails(t *testing.T) {
	payload := `{
		"top_strengths": [], "top_weaknesses": [],
		"overall_summary": "要約", "ai_use_level": "expert",
		"recommendations": []
	}`
	_, err := ParseStep3(payload)
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "ai_use_level", schemaErr.Field)
}

func TestParseStep3MissingListKeyFails(t *testing.T) {
	payload := `{"top_strengths": [], "overall_summary": "s", "ai_use_level": "基礎", "recommendations": []}`
	_, err := ParseStep3(payload)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "top_weaknesses", schemaErr.Field)
}

func TestParseStep4Valid(t *testing.T) {
	payload := `{
		"status": "valid",
		"consistency_score": 4.7,
		"issues": [],
		"summary": "両評価はほぼ一致している"
	}`
	result, err := ParseStep4(payload)
	require.NoError(t, err)
	assert.InDelta(t, 4.7, *result.ConsistencyScore, 1e-9)
	assert.Empty(t, *result.Issues)
}

func TestParseStep4ScoreRange(t *testing.T) {
	// consistency_score uses the tighter [1,5] range, not [0,5].
	for _, value := range []string{"0.9", "0", "5.1"} {
		payload := `{"status": "valid", "consistency_score": ` + value + `, "issues": [], "summary": "s"}`
		_, err := ParseStep4(payload)
		require.Error(t, err, "consistency_score %s must be out of range", value)
	}

	payload := `{"status": "caution", "consistency_score": 1, "issues": ["乖離"], "summary": "s"}`
	result, err := ParseStep4(payload)
	require.NoError(t, err, "exactly 1 is in range")
	assert.InDelta(t, 1.0, *result.ConsistencyScore, 1e-9)
}

func TestParseStep4MissingKeysFail(t *testing.T) {
	for field, payload := range map[string]string{
		"consistency_score": `{"status": "valid", "issues": [], "summary": "s"}`,
		"issues":            `{"status": "valid", "consistency_score": 4, "summary": "s"}`,
		"summary":           `{"status": "valid", "consistency_score": 4, "issues": []}`,
		"status":            `{"consistency_score": 4, "issues": [], "summary": "s"}`,
	} {
		_, err := ParseStep4(payload)
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr, "payload without %s", field)
		assert.Equal(t, field, schemaErr.Field)
	}
}

func TestParseDispatchesByStep(t *testing.T) {
	parsed, err := Parse(domain.StepPM1Raw, validStep1JSON)
	require.NoError(t, err)
	_, ok := parsed.(*domain.RawQuestionScore)
	assert.True(t, ok, "step 1 payload type")

	_, err = Parse(domain.Step(9), "{}")
	require.Error(t, err, "unknown step must fail")
}
