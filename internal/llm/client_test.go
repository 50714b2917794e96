package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genglossary/genglossary/internal/types"
)

func TestNewSelectsAdapter(t *testing.T) {
	c, err := New(Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.IsType(t, &ollamaClient{}, c)

	c, err = New(Config{Provider: ""})
	require.NoError(t, err)
	assert.IsType(t, &ollamaClient{}, c, "ollama is the default provider")

	c, err = New(Config{Provider: "OpenAI"})
	require.NoError(t, err)
	assert.IsType(t, &openaiClient{}, c)

	_, err = New(Config{Provider: "bard"})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestDecodeStructuredToleratesFences(t *testing.T) {
	var out struct {
		Definition string `json:"definition"`
	}
	for _, raw := range []string{
		`{"definition": "plain"}`,
		"```json\n{\"definition\": \"plain\"}\n```",
		"```\n{\"definition\": \"plain\"}\n```",
		"  {\"definition\": \"plain\"}  ",
	} {
		out.Definition = ""
		require.NoError(t, decodeStructured(raw, &out), raw)
		assert.Equal(t, "plain", out.Definition)
	}

	err := decodeStructured("not json at all", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not json at all")
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, retryable(nil))
	assert.False(t, retryable(context.Canceled))
	assert.False(t, retryable(context.DeadlineExceeded))
	assert.False(t, retryable(errors.New("schema mismatch")))

	assert.True(t, retryable(&httpStatusError{status: 429}))
	assert.True(t, retryable(&httpStatusError{status: 500}))
	assert.True(t, retryable(&httpStatusError{status: 503}))
	assert.False(t, retryable(&httpStatusError{status: 400}))
	assert.False(t, retryable(&httpStatusError{status: 404}))
}

func TestWithRetryWrapsTransportFailures(t *testing.T) {
	err := withRetry(context.Background(), func() error {
		return &httpStatusError{status: 401, body: "bad key"}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrLLMUnavailable)

	// Plain application errors pass through unwrapped.
	sentinel := errors.New("parse failure")
	err = withRetry(context.Background(), func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, types.ErrLLMUnavailable)

	// Cancellation is never converted to an availability error.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = withRetry(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOllamaGenerateStructured(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/generate":
			var req ollamaGenerateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)
			assert.False(t, req.Stream)
			assert.NotEmpty(t, req.Format, "structured calls force a format")
			_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
				Response: `{"definition": "a thing", "confidence": 0.9}`,
				Done:     true,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer backend.Close()

	client, err := New(Config{Provider: "ollama", Model: "test-model", BaseURL: backend.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.True(t, client.Available(context.Background()))

	var out struct {
		Definition string  `json:"definition"`
		Confidence float64 `json:"confidence"`
	}
	schema := json.RawMessage(`{"type": "object"}`)
	require.NoError(t, client.GenerateStructured(context.Background(), "define a thing", schema, &out))
	assert.Equal(t, "a thing", out.Definition)
	assert.Equal(t, 0.9, out.Confidence)
}
