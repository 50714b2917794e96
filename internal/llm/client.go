// Package llm defines the language-model collaborator interface and its
// wire adapters. The pipeline executor depends only on Client; which wire
// protocol backs it is configuration.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/genglossary/genglossary/internal/types"
)

// Client is the narrow contract the pipeline uses. Implementations must
// honor ctx cancellation and deadlines on every call.
type Client interface {
	// Generate returns free-form text for a prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStructured asks for JSON conforming to schema and decodes the
	// response into out. schema is a JSON Schema document; adapters that
	// support native JSON mode pass it through, others embed it in the prompt.
	GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, out any) error

	// Available probes the backend with a short timeout.
	Available(ctx context.Context) bool
}

// Config selects and parameterizes a wire adapter.
type Config struct {
	Provider string        // "ollama", "openai", or "anthropic"
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// DefaultTimeout caps a single LLM call when the config does not set one.
const DefaultTimeout = 120 * time.Second

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// New builds the adapter for cfg.Provider.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		return newOllamaClient(cfg), nil
	case "openai":
		return newOpenAIClient(cfg), nil
	case "anthropic":
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", types.ErrValidation, cfg.Provider)
	}
}

// cleanJSON strips markdown code fences that models sometimes wrap around
// JSON output despite JSON mode.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// decodeStructured parses a model response into out, tolerating fences.
func decodeStructured(raw string, out any) error {
	cleaned := cleanJSON(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("failed to parse structured llm response: %w (response: %.200s)", err, raw)
	}
	return nil
}
