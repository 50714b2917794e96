package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

type anthropicClient struct {
	client  anthropic.Client
	model   anthropic.Model
	timeout time.Duration
}

func newAnthropicClient(cfg Config) (*anthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicClient{
		client:  anthropic.NewClient(opts...),
		model:   anthropic.Model(cfg.Model),
		timeout: cfg.timeout(),
	}, nil
}

func (a *anthropicClient) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	var text string
	err := withRetry(ctx, func() error {
		message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     a.model,
			MaxTokens: anthropicMaxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			return translateAnthropicError(err)
		}
		if len(message.Content) == 0 {
			return fmt.Errorf("unexpected response format: no content blocks")
		}
		block := message.Content[0]
		if block.Type != "text" {
			return fmt.Errorf("unexpected response format: not a text block (type=%s)", block.Type)
		}
		text = block.Text
		return nil
	})
	recordCall(ctx, "anthropic", string(a.model), start, err)
	return text, err
}

func (a *anthropicClient) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, out any) error {
	// The Messages API has no JSON mode; the schema rides in the prompt and
	// fence stripping covers the usual wrapping.
	if len(schema) > 0 {
		prompt = prompt + "\n\nRespond with only a JSON document matching this schema, no prose:\n" + string(schema)
	}
	raw, err := a.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	return decodeStructured(raw, out)
}

func (a *anthropicClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err == nil {
		return true
	}
	// An authentication or quota error still proves the endpoint answers.
	var apiErr *anthropic.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode < 500
}

// translateAnthropicError reshapes SDK errors into the shared retry policy's
// status form.
func translateAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &httpStatusError{status: apiErr.StatusCode, body: apiErr.Error()}
	}
	return err
}
