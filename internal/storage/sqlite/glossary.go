package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/genglossary/genglossary/internal/types"
)

// Glossary tables served by the generic repository below. Same whitelist
// discipline as the term lists: the name is interpolated, so it is validated
// first.
const (
	TableProvisional = "glossary_provisional"
	TableRefined     = "glossary_refined"
)

var glossaryTables = map[string]bool{
	TableProvisional: true,
	TableRefined:     true,
}

func checkGlossaryTable(table string) error {
	if !glossaryTables[table] {
		return fmt.Errorf("%w: unknown glossary table %q", types.ErrValidation, table)
	}
	return nil
}

func marshalOccurrences(occ []types.Occurrence) (string, error) {
	if occ == nil {
		occ = []types.Occurrence{}
	}
	b, err := json.Marshal(occ)
	if err != nil {
		return "", fmt.Errorf("failed to serialize occurrences: %w", err)
	}
	return string(b), nil
}

func unmarshalOccurrences(s string) ([]types.Occurrence, error) {
	var occ []types.Occurrence
	if s == "" {
		return occ, nil
	}
	if err := json.Unmarshal([]byte(s), &occ); err != nil {
		return nil, fmt.Errorf("failed to parse occurrences: %w", err)
	}
	return occ, nil
}

// InsertGlossaryEntries batch-inserts entries into a glossary table.
func InsertGlossaryEntries(ctx context.Context, c *Conn, table string, entries []types.GlossaryEntry) error {
	if err := checkGlossaryTable(table); err != nil {
		return err
	}
	rows := make([][]any, len(entries))
	for i, e := range entries {
		occ, err := marshalOccurrences(e.Occurrences)
		if err != nil {
			return err
		}
		rows[i] = []any{e.TermName, e.Definition, e.Confidence, occ}
	}
	return BatchInsert(ctx, c, table, []string{"term_name", "definition", "confidence", "occurrences"}, rows)
}

// ReplaceGlossary clears a glossary table and writes a new entry set inside
// the caller's transaction (clear-then-insert is the stage contract for both
// generate and refine).
func ReplaceGlossary(ctx context.Context, c *Conn, table string, entries []types.GlossaryEntry) error {
	if err := checkGlossaryTable(table); err != nil {
		return err
	}
	if _, err := c.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil { // #nosec G201 - table validated against whitelist
		return wrapDBError("clear "+table, err)
	}
	return InsertGlossaryEntries(ctx, c, table, entries)
}

// ListGlossary returns all entries of a glossary table ordered by term name.
func ListGlossary(ctx context.Context, c *Conn, table string) ([]types.GlossaryEntry, error) {
	if err := checkGlossaryTable(table); err != nil {
		return nil, err
	}
	rows, err := c.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, term_name, definition, confidence, occurrences FROM %s ORDER BY term_name`, table)) // #nosec G201 - table validated against whitelist
	if err != nil {
		return nil, wrapDBError("list "+table, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []types.GlossaryEntry
	for rows.Next() {
		var e types.GlossaryEntry
		var occ string
		if err := rows.Scan(&e.ID, &e.TermName, &e.Definition, &e.Confidence, &occ); err != nil {
			return nil, wrapDBError("scan "+table, err)
		}
		if e.Occurrences, err = unmarshalOccurrences(occ); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, wrapDBError("list "+table, rows.Err())
}

// GetGlossaryEntry fetches one entry by term name.
func GetGlossaryEntry(ctx context.Context, c *Conn, table, termName string) (*types.GlossaryEntry, error) {
	if err := checkGlossaryTable(table); err != nil {
		return nil, err
	}
	var e types.GlossaryEntry
	var occ string
	err := c.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, term_name, definition, confidence, occurrences FROM %s WHERE term_name = ?`, table), // #nosec G201 - table validated against whitelist
		termName).Scan(&e.ID, &e.TermName, &e.Definition, &e.Confidence, &occ)
	if err != nil {
		return nil, wrapDBError("get entry from "+table, err)
	}
	if e.Occurrences, err = unmarshalOccurrences(occ); err != nil {
		return nil, err
	}
	return &e, nil
}

// CountGlossary returns the number of entries in a glossary table.
func CountGlossary(ctx context.Context, c *Conn, table string) (int, error) {
	if err := checkGlossaryTable(table); err != nil {
		return 0, err
	}
	var n int
	err := c.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n) // #nosec G201 - table validated against whitelist
	return n, wrapDBError("count "+table, err)
}
