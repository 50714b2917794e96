package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/genglossary/genglossary/internal/types"
)

// InsertTerm stores one extracted candidate term.
func InsertTerm(ctx context.Context, c *Conn, t *types.Term) (int64, error) {
	var category any
	if t.Category != "" {
		category = t.Category
	}
	res, err := c.ExecContext(ctx, `
		INSERT INTO terms_extracted (term_text, category, user_notes) VALUES (?, ?, ?)
	`, t.TermText, category, t.UserNotes)
	if err != nil {
		return 0, wrapDBError("insert term", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBError("insert term", err)
	}
	return id, nil
}

// InsertTermsBatch stores extracted terms in one whitelisted batch insert.
func InsertTermsBatch(ctx context.Context, c *Conn, terms []types.Term) error {
	rows := make([][]any, len(terms))
	for i, t := range terms {
		var category any
		if t.Category != "" {
			category = t.Category
		}
		rows[i] = []any{t.TermText, category, t.UserNotes}
	}
	return BatchInsert(ctx, c, "terms_extracted", []string{"term_text", "category", "user_notes"}, rows)
}

// ListTerms returns extracted terms ordered by text.
func ListTerms(ctx context.Context, c *Conn) ([]types.Term, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT id, term_text, category, user_notes FROM terms_extracted ORDER BY term_text
	`)
	if err != nil {
		return nil, wrapDBError("list terms", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTerms(rows)
}

func scanTerms(rows *sql.Rows) ([]types.Term, error) {
	var terms []types.Term
	for rows.Next() {
		var t types.Term
		var category sql.NullString
		if err := rows.Scan(&t.ID, &t.TermText, &category, &t.UserNotes); err != nil {
			return nil, wrapDBError("scan term", err)
		}
		t.Category = category.String
		terms = append(terms, t)
	}
	return terms, wrapDBError("list terms", rows.Err())
}

// UpdateTermCategory sets the classification of one term.
func UpdateTermCategory(ctx context.Context, c *Conn, id int64, category string) error {
	res, err := c.ExecContext(ctx, `UPDATE terms_extracted SET category = ? WHERE id = ?`, category, id)
	if err != nil {
		return wrapDBError("update term category", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("update term category", err)
	}
	if n == 0 {
		return fmt.Errorf("update term %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetUserNotes replaces the user notes for one term.
func SetUserNotes(ctx context.Context, c *Conn, id int64, notes string) error {
	res, err := c.ExecContext(ctx, `UPDATE terms_extracted SET user_notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return wrapDBError("set user notes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("set user notes", err)
	}
	if n == 0 {
		return fmt.Errorf("set user notes for term %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAllTerms clears terms_extracted. Extraction calls BackupUserNotes
// first and RestoreUserNotes afterwards so notes survive the reset.
func DeleteAllTerms(ctx context.Context, c *Conn) error {
	_, err := c.ExecContext(ctx, `DELETE FROM terms_extracted`)
	return wrapDBError("delete all terms", err)
}

// BackupUserNotes returns {term_text → user_notes} for every term with
// non-empty notes.
func BackupUserNotes(ctx context.Context, c *Conn) (map[string]string, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT term_text, user_notes FROM terms_extracted WHERE user_notes != ''
	`)
	if err != nil {
		return nil, wrapDBError("backup user notes", err)
	}
	defer func() { _ = rows.Close() }()

	notes := make(map[string]string)
	for rows.Next() {
		var text, note string
		if err := rows.Scan(&text, &note); err != nil {
			return nil, wrapDBError("backup user notes", err)
		}
		notes[text] = note
	}
	return notes, wrapDBError("backup user notes", rows.Err())
}

// RestoreUserNotes re-applies a notes backup by matching term text. Terms
// absent from the new extraction are silently skipped.
func RestoreUserNotes(ctx context.Context, c *Conn, notes map[string]string) error {
	for text, note := range notes {
		if _, err := c.ExecContext(ctx, `
			UPDATE terms_extracted SET user_notes = ? WHERE term_text = ?
		`, note, text); err != nil {
			return wrapDBError("restore user notes", err)
		}
	}
	return nil
}

// ListAllTerms returns the unified term listing: extracted terms plus
// required terms, minus excluded terms that are not also required, sorted by
// text. Required-only rows carry a negative synthetic id (the negated
// terms_required id) so callers can tell them apart from extracted rows.
func ListAllTerms(ctx context.Context, c *Conn) ([]types.Term, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT te.id, te.term_text, te.category, te.user_notes
		FROM terms_extracted te
		WHERE te.term_text NOT IN (
			SELECT term_text FROM terms_excluded
			WHERE term_text NOT IN (SELECT term_text FROM terms_required)
		)
		UNION
		SELECT -tr.id, tr.term_text, NULL, ''
		FROM terms_required tr
		WHERE tr.term_text NOT IN (SELECT term_text FROM terms_extracted)
		ORDER BY term_text
	`)
	if err != nil {
		return nil, wrapDBError("list all terms", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTerms(rows)
}
