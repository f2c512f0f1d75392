package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// NewRateLimitMiddleware enforces a client-boundary request rate so pipeline
// instances sharing one client stay inside the provider's limits. A zero or
// negative rps disables limiting. Waiting respects context cancellation.
func NewRateLimitMiddleware(rps float64, burst int) Middleware {
	if rps <= 0 {
		return func(next Handler) Handler { return next }
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter wait: %w", err)
			}
			return next.Handle(ctx, req)
		})
	}
}
