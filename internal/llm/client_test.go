package llm

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aicats/pmdiag/internal/domain"
)

const step1Content = `{
	"primary_score": 4, "sub_score": 3, "process_score": 5,
	"aes_clarity": 4, "aes_logic": 4, "aes_relevance": 4,
	"evidence": "e", "judgment_reason": "r"
}`

func staticHandler(content string) Handler {
	return HandlerFunc(func(_ context.Context, _ *Request) (*Response, error) {
		return &Response{Content: content}, nil
	})
}

func TestJudgeReturnsTypedPayload(t *testing.T) {
	client := NewClientWithHandler(Chain(staticHandler(step1Content), newValidationMiddleware()))

	parsed, err := client.Judge(context.Background(), testRequest())
	require.NoError(t, err)

	score, ok := parsed.(*domain.RawQuestionScore)
	require.True(t, ok, "step-1 judgments parse to raw question scores")
	assert.InDelta(t, 4.0, score.PrimaryScore, 1e-9)
}

func TestJudgeSurfacesSchemaFailure(t *testing.T) {
	client := NewClientWithHandler(Chain(staticHandler("not json at all"), newValidationMiddleware()))

	_, err := client.Judge(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchemaInvalid)
}

func TestSchemaFailureInsideRetryScope(t *testing.T) {
	// With RetrySchemaInvalid set, the validation layer sits inside retry:
	// a malformed response consumes an attempt and the next response can
	// succeed.
	calls := 0
	flaky := HandlerFunc(func(_ context.Context, _ *Request) (*Response, error) {
		calls++
		if calls == 1 {
			return &Response{Content: "garbage"}, nil
		}
		return &Response{Content: step1Content}, nil
	})

	cfg := fastRetryConfig(3)
	cfg.RetrySchemaInvalid = true
	retryMW, err := NewRetryMiddleware(cfg, slog.Default())
	require.NoError(t, err)

	client := NewClientWithHandler(Chain(flaky, retryMW, newValidationMiddleware()))
	parsed, err := client.Judge(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "first malformed response consumed one attempt")
	assert.IsType(t, &domain.RawQuestionScore{}, parsed)
}
