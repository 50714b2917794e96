package sqlite

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/genglossary/genglossary/internal/types"
)

// ValidateDocumentPath rejects anything that is not a clean POSIX relative
// path: absolute paths, drive letters, backslashes, and ".." segments. The
// check runs at the API boundary so traversal attempts never reach storage.
func ValidateDocumentPath(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty document path", types.ErrValidation)
	}
	if strings.ContainsRune(name, '\\') {
		return fmt.Errorf("%w: backslash in document path %q", types.ErrValidation, name)
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("%w: absolute document path %q", types.ErrValidation, name)
	}
	if len(name) >= 2 && name[1] == ':' {
		return fmt.Errorf("%w: drive letter in document path %q", types.ErrValidation, name)
	}
	cleaned := path.Clean(name)
	if cleaned != name || cleaned == "." || cleaned == ".." ||
		strings.HasPrefix(cleaned, "../") || strings.Contains(cleaned, "/../") {
		return fmt.Errorf("%w: document path %q escapes the document root", types.ErrValidation, name)
	}
	return nil
}

// InsertDocument stores one document after validating its path.
func InsertDocument(ctx context.Context, c *Conn, d *types.Document) (int64, error) {
	if err := ValidateDocumentPath(d.FileName); err != nil {
		return 0, err
	}
	res, err := c.ExecContext(ctx, `
		INSERT INTO documents (file_name, content, content_hash) VALUES (?, ?, ?)
	`, d.FileName, d.Content, types.HashContent(d.Content))
	if err != nil {
		return 0, wrapDBError("insert document", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBError("insert document", err)
	}
	return id, nil
}

// InsertDocumentsBatch stores a set of documents in one whitelisted batch insert.
func InsertDocumentsBatch(ctx context.Context, c *Conn, docs []types.Document) error {
	rows := make([][]any, len(docs))
	for i, d := range docs {
		if err := ValidateDocumentPath(d.FileName); err != nil {
			return err
		}
		rows[i] = []any{d.FileName, d.Content, types.HashContent(d.Content)}
	}
	return BatchInsert(ctx, c, "documents", []string{"file_name", "content", "content_hash"}, rows)
}

// ListDocuments returns all documents ordered by file name.
func ListDocuments(ctx context.Context, c *Conn) ([]types.Document, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT id, file_name, content, content_hash FROM documents ORDER BY file_name
	`)
	if err != nil {
		return nil, wrapDBError("list documents", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []types.Document
	for rows.Next() {
		var d types.Document
		if err := rows.Scan(&d.ID, &d.FileName, &d.Content, &d.ContentHash); err != nil {
			return nil, wrapDBError("scan document", err)
		}
		docs = append(docs, d)
	}
	return docs, wrapDBError("list documents", rows.Err())
}

// CountDocuments returns the number of stored documents.
func CountDocuments(ctx context.Context, c *Conn) (int, error) {
	var n int
	err := c.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, wrapDBError("count documents", err)
}

// GetDocumentByName fetches a document by its relative path.
func GetDocumentByName(ctx context.Context, c *Conn, name string) (*types.Document, error) {
	var d types.Document
	err := c.QueryRowContext(ctx, `
		SELECT id, file_name, content, content_hash FROM documents WHERE file_name = ?
	`, name).Scan(&d.ID, &d.FileName, &d.Content, &d.ContentHash)
	if err != nil {
		return nil, wrapDBError("get document", err)
	}
	return &d, nil
}

// DeleteDocument removes a document by id. Returns ErrNotFound for unknown ids.
func DeleteDocument(ctx context.Context, c *Conn, id int64) error {
	res, err := c.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("delete document", err)
	}
	if n == 0 {
		return fmt.Errorf("delete document %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAllDocuments clears the documents table (re-load from disk path).
func DeleteAllDocuments(ctx context.Context, c *Conn) error {
	_, err := c.ExecContext(ctx, `DELETE FROM documents`)
	return wrapDBError("delete all documents", err)
}
