package llm

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aicats/pmdiag/internal/parser"
)

// Config assembles the full judgment client.
type Config struct {
	Transport TransportConfig
	Retry     RetryConfig

	// RequestsPerSecond enforces a client-boundary rate limit shared by
	// every pipeline instance using this client. Zero disables it.
	RequestsPerSecond float64
	Burst             int
}

// Client is the judgment client the orchestrator calls. One Client is safe
// for concurrent use by independent pipeline instances; the retry budget and
// rate limit are enforced here, at the client boundary, not inside the
// orchestrator.
type Client struct {
	handler Handler
}

// NewClient builds the middleware pipeline around the HTTP transport:
// logging -> rate limit -> retry -> schema validation -> HTTP. Validation
// sits inside the retry layer so that, when RetrySchemaInvalid is enabled, a
// parse failure consumes a retry attempt and re-prompts the model.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	retryMW, err := NewRetryMiddleware(cfg.Retry, logger)
	if err != nil {
		return nil, err
	}

	handler := Chain(
		NewHTTPHandler(httpClient, cfg.Transport),
		NewLoggingMiddleware(logger),
		NewRateLimitMiddleware(cfg.RequestsPerSecond, cfg.Burst),
		retryMW,
		newValidationMiddleware(),
	)
	return &Client{handler: handler}, nil
}

// NewClientWithHandler wires a pre-built handler; used by tests to stub the
// transport while keeping the public surface identical.
func NewClientWithHandler(h Handler) *Client {
	return &Client{handler: h}
}

// Judge sends a rendered prompt and returns the parsed step payload:
// *domain.RawQuestionScore for steps 1-2, *parser.Step3Payload for step 3,
// *parser.Step4Payload for step 4. Failures are typed: TransportError
// (possibly wrapped in ErrRetriesExhausted) or a parser SchemaError.
func (c *Client) Judge(ctx context.Context, req *Request) (any, error) {
	resp, err := c.handler.Handle(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Parsed, nil
}

// newValidationMiddleware parses and schema-validates the transport reply
// for the request's step. Placed innermost so retry policy can observe
// schema failures.
func newValidationMiddleware() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			resp, err := next.Handle(ctx, req)
			if err != nil {
				return nil, err
			}
			parsed, err := parser.Parse(req.Step, resp.Content)
			if err != nil {
				return nil, err
			}
			resp.Parsed = parsed
			return resp, nil
		})
	}
}
