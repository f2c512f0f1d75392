package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// NewLoggingMiddleware logs the judgment request lifecycle: start,
// completion latency, and classified failures. Prompts are never logged;
// they may contain respondent answer text.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "llm")

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			if req.TraceID == "" {
				req.TraceID = uuid.New().String()
			}

			logger.DebugContext(ctx, "judgment request",
				"trace_id", req.TraceID,
				"respondent", req.RespondentID,
				"question", req.QuestionID,
				"step", req.Step.String(),
				"prompt_len", len(req.Prompt))

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			latency := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "judgment failed",
					"trace_id", req.TraceID,
					"respondent", req.RespondentID,
					"step", req.Step.String(),
					"latency_ms", latency.Milliseconds(),
					"error", err)
				return nil, err
			}

			logger.DebugContext(ctx, "judgment complete",
				"trace_id", req.TraceID,
				"respondent", req.RespondentID,
				"step", req.Step.String(),
				"latency_ms", latency.Milliseconds(),
				"content_len", len(resp.Content))
			return resp, nil
		})
	}
}
