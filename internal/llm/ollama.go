package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// ollamaClient talks to an Ollama-compatible /api/generate endpoint with
// stream disabled and JSON mode forced for structured calls.
type ollamaClient struct {
	baseURL string
	model   string
	http    *http.Client
}

func newOllamaClient(cfg Config) *ollamaClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOllamaBaseURL
	}
	return &ollamaClient{
		baseURL: strings.TrimSuffix(base, "/"),
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.timeout()},
	}
}

type ollamaGenerateRequest struct {
	Model  string          `json:"model"`
	Prompt string          `json:"prompt"`
	Stream bool            `json:"stream"`
	Format json.RawMessage `json:"format,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *ollamaClient) generate(ctx context.Context, prompt string, format json.RawMessage) (string, error) {
	start := time.Now()
	var text string
	err := withRetry(ctx, func() error {
		body, err := json.Marshal(ollamaGenerateRequest{
			Model:  o.model,
			Prompt: prompt,
			Stream: false,
			Format: format,
		})
		if err != nil {
			return fmt.Errorf("failed to encode ollama request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &httpStatusError{status: resp.StatusCode, body: string(data)}
		}
		var parsed ollamaGenerateResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse ollama response: %w", err)
		}
		text = parsed.Response
		return nil
	})
	recordCall(ctx, "ollama", o.model, start, err)
	return text, err
}

func (o *ollamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	return o.generate(ctx, prompt, nil)
}

func (o *ollamaClient) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, out any) error {
	// Ollama accepts either "json" or a JSON Schema document as format.
	format := json.RawMessage(`"json"`)
	if len(schema) > 0 {
		format = schema
	}
	raw, err := o.generate(ctx, prompt, format)
	if err != nil {
		return err
	}
	return decodeStructured(raw, out)
}

// Available checks that the backend answers its tags listing quickly.
func (o *ollamaClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
