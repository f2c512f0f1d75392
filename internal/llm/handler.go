// Package llm implements the judgment client: it sends rendered prompts to
// the external model and returns parsed, schema-validated judgments or typed
// failures. Requests flow through a composable middleware pipeline (logging,
// rate limiting, retry, validation) around a core HTTP handler speaking the
// OpenAI chat/completions format. The client owns retry policy; parse
// failures are permanent for a given response and are not retried unless the
// RetrySchemaInvalid option explicitly says otherwise.
package llm

import (
	"context"
	"time"

	"github.com/aicats/pmdiag/internal/domain"
)

// Request is one judgment invocation travelling through the middleware
// pipeline.
type Request struct {
	// TraceID correlates log lines for one invocation across retries.
	// Assigned by the logging middleware when empty.
	TraceID string

	// RespondentID and QuestionID provide log context; QuestionID is empty
	// for the single-call steps 3 and 4.
	RespondentID string
	QuestionID   string

	// Step selects the response schema the validation layer enforces.
	Step domain.Step

	// Prompt is the fully rendered prompt text.
	Prompt string

	// Timeout bounds one attempt; zero falls back to the client default.
	Timeout time.Duration
}

// Response is the model's reply after transport and validation.
type Response struct {
	// Content is the raw text returned by the model.
	Content string

	// Parsed is the typed step payload set by the validation middleware:
	// *domain.RawQuestionScore for steps 1-2, *parser.Step3Payload and
	// *parser.Step4Payload for steps 3-4.
	Parsed any
}

// Handler processes judgment requests through the middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
// Applied in reverse order, with the last middleware closest to the core.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler. Middleware
// executes in the order provided, first middleware outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
