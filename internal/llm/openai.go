package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openaiClient speaks the chat/completions dialect, which also covers
// OpenAI-compatible local servers (llama.cpp, vLLM, LM Studio) via BaseURL.
type openaiClient struct {
	baseURL string
	model   string
	apiKey  string
	http    *http.Client
}

func newOpenAIClient(cfg Config) *openaiClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	return &openaiClient{
		baseURL: strings.TrimSuffix(base, "/"),
		model:   cfg.Model,
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		http:    &http.Client{Timeout: cfg.timeout()},
	}
}

type openaiChatRequest struct {
	Model          string          `json:"model"`
	Messages       []openaiMessage `json:"messages"`
	ResponseFormat *openaiFormat   `json:"response_format,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiFormat struct {
	Type string `json:"type"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message openaiMessage `json:"message"`
	} `json:"choices"`
}

func (c *openaiClient) chat(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	start := time.Now()
	var text string
	err := withRetry(ctx, func() error {
		payload := openaiChatRequest{
			Model:    c.model,
			Messages: []openaiMessage{{Role: "user", Content: prompt}},
		}
		if jsonMode {
			payload.ResponseFormat = &openaiFormat{Type: "json_object"}
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode chat request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
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
		var parsed openaiChatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse chat response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("chat response contained no choices")
		}
		text = parsed.Choices[0].Message.Content
		return nil
	})
	recordCall(ctx, "openai", c.model, start, err)
	return text, err
}

func (c *openaiClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, prompt, false)
}

func (c *openaiClient) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, out any) error {
	// json_object mode requires the word "JSON" in the prompt; the schema is
	// embedded so smaller models shape their output to it.
	if len(schema) > 0 {
		prompt = prompt + "\n\nRespond with JSON matching this schema:\n" + string(schema)
	}
	raw, err := c.chat(ctx, prompt, true)
	if err != nil {
		return err
	}
	return decodeStructured(raw, out)
}

func (c *openaiClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
