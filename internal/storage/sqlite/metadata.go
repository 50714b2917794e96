package sqlite

import (
	"context"

	"github.com/genglossary/genglossary/internal/types"
)

// UpsertMetadata writes the single metadata row (id = 1). The UPSERT keeps
// the table at exactly one row across repeated generations.
func UpsertMetadata(ctx context.Context, c *Conn, m *types.Metadata) error {
	_, err := c.ExecContext(ctx, `
		INSERT INTO metadata (id, input_path, llm_provider, llm_model, llm_base_url)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			input_path = excluded.input_path,
			llm_provider = excluded.llm_provider,
			llm_model = excluded.llm_model,
			llm_base_url = excluded.llm_base_url
	`, m.InputPath, m.LLMProvider, m.LLMModel, m.LLMBaseURL)
	return wrapDBError("upsert metadata", err)
}

// GetMetadata reads the metadata row. Returns ErrNotFound before first generation.
func GetMetadata(ctx context.Context, c *Conn) (*types.Metadata, error) {
	var m types.Metadata
	err := c.QueryRowContext(ctx, `
		SELECT input_path, llm_provider, llm_model, llm_base_url FROM metadata WHERE id = 1
	`).Scan(&m.InputPath, &m.LLMProvider, &m.LLMModel, &m.LLMBaseURL)
	if err != nil {
		return nil, wrapDBError("get metadata", err)
	}
	return &m, nil
}
