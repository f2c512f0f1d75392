package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// systemPrompt pins the model into strict-JSON evaluator mode for every step.
const systemPrompt = "You are an expert evaluator. Output ONLY valid JSON."

// TransportConfig configures the core HTTP handler.
type TransportConfig struct {
	// Endpoint is the chat/completions URL.
	Endpoint string

	// APIKey authenticates the request (bearer token).
	APIKey string

	// Model selects the judgment model.
	Model string

	// Timeout bounds one attempt when the request carries none.
	Timeout time.Duration
}

// chatRequest is the OpenAI chat/completions request body. Temperature is
// pinned to zero and JSON output forced via response_format.
type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// httpHandler is the core handler that performs the outbound call.
type httpHandler struct {
	client *http.Client
	config TransportConfig
}

// NewHTTPHandler creates the core transport handler. A nil client falls back
// to a dedicated http.Client; per-attempt deadlines come from the request
// context, not the client.
func NewHTTPHandler(client *http.Client, cfg TransportConfig) Handler {
	if client == nil {
		client = &http.Client{}
	}
	return &httpHandler{client: client, config: cfg}
}

// Handle sends one chat/completions request and extracts the reply text.
// All failures come back as classified TransportErrors.
func (h *httpHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = h.config.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body := chatRequest{
		Model: h.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Temperature:    0,
		ResponseFormat: &formatSpec{Type: "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+h.config.APIKey)

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, classifyNetworkError(err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{Type: ErrorTypeNetwork, Message: fmt.Sprintf("read response: %v", err)}
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &TransportError{Type: ErrorTypeResponse, Message: fmt.Sprintf("malformed provider response: %v", err)}
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, &TransportError{Type: ErrorTypeResponse, Message: "no content in provider response"}
	}

	return &Response{Content: parsed.Choices[0].Message.Content}, nil
}

// classifyNetworkError maps connection-level failures to transport types.
func classifyNetworkError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Type: ErrorTypeTimeout, Message: err.Error()}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransportError{Type: ErrorTypeTimeout, Message: err.Error()}
	}
	return &TransportError{Type: ErrorTypeNetwork, Message: err.Error()}
}

// classifyHTTPError maps provider status codes to transport types,
// respecting Retry-After guidance on rate limits.
func classifyHTTPError(resp *http.Response, body []byte) error {
	message := http.StatusText(resp.StatusCode)
	var detail apiError
	if err := json.Unmarshal(body, &detail); err == nil && detail.Error.Message != "" {
		message = detail.Error.Message
	}

	te := &TransportError{StatusCode: resp.StatusCode, Message: message}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		te.Type = ErrorTypeRateLimit
		if after := resp.Header.Get("Retry-After"); after != "" {
			if seconds, err := strconv.Atoi(after); err == nil && seconds > 0 {
				te.RetryAfter = time.Duration(seconds) * time.Second
			}
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		te.Type = ErrorTypeAuth
	case resp.StatusCode >= 500:
		te.Type = ErrorTypeProvider
	case resp.StatusCode == http.StatusRequestTimeout:
		te.Type = ErrorTypeTimeout
	default:
		te.Type = ErrorTypeResponse
	}
	return te
}
