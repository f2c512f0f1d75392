package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T, handler http.HandlerFunc) Handler {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPHandler(server.Client(), TransportConfig{
		Endpoint: server.URL,
		APIKey:   "test-key",
		Model:    "test-model",
		Timeout:  5 * time.Second,
	})
}

func TestHTTPHandlerSuccess(t *testing.T) {
	var captured chatRequest
	transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	})

	resp, err := transport.Handle(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)

	assert.Equal(t, "test-model", captured.Model)
	assert.Zero(t, captured.Temperature, "judgments run at temperature zero")
	require.NotNil(t, captured.ResponseFormat)
	assert.Equal(t, "json_object", captured.ResponseFormat.Type)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
}

func TestHTTPHandlerClassifiesStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		headers    map[string]string
		wantType   ErrorType
		retryable  bool
		retryAfter time.Duration
	}{
		{name: "rate limited", status: 429, headers: map[string]string{"Retry-After": "7"},
			wantType: ErrorTypeRateLimit, retryable: true, retryAfter: 7 * time.Second},
		{name: "unauthorized", status: 401, wantType: ErrorTypeAuth},
		{name: "forbidden", status: 403, wantType: ErrorTypeAuth},
		{name: "server error", status: 500, wantType: ErrorTypeProvider, retryable: true},
		{name: "bad gateway", status: 502, wantType: ErrorTypeProvider, retryable: true},
		{name: "request timeout", status: 408, wantType: ErrorTypeTimeout, retryable: true},
		{name: "unexpected", status: 418, wantType: ErrorTypeResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := newTestTransport(t, func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"details"}}`))
			})

			_, err := transport.Handle(context.Background(), testRequest())
			require.Error(t, err)

			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
			assert.Equal(t, tt.wantType, transportErr.Type)
			assert.Equal(t, tt.status, transportErr.StatusCode)
			assert.Equal(t, tt.retryable, transportErr.IsRetryable())
			assert.Equal(t, tt.retryAfter, transportErr.GetRetryAfter())
			assert.Equal(t, "details", transportErr.Message, "provider error detail is surfaced")
		})
	}
}

func TestHTTPHandlerEmptyChoices(t *testing.T) {
	transport := newTestTransport(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := transport.Handle(context.Background(), testRequest())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, ErrorTypeResponse, transportErr.Type)
	assert.False(t, transportErr.IsRetryable())
}

func TestHTTPHandlerTimeout(t *testing.T) {
	slow := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})

	req := testRequest()
	req.Timeout = 20 * time.Millisecond
	_, err := slow.Handle(context.Background(), req)
	require.Error(t, err)

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, ErrorTypeTimeout, transportErr.Type)
	assert.True(t, transportErr.IsRetryable(), "timeouts count as retryable transport failures")
}
