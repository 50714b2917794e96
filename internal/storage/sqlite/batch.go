package sqlite

import (
	"context"
	"fmt"
	"strings"
)

// maxBatchParams keeps multi-row inserts under SQLite's host parameter limit.
const maxBatchParams = 900

// batchTables whitelists the tables and column sets BatchInsert may target.
// The table and column names are interpolated into SQL text, so anything not
// on this list is rejected before query construction. Callers are trusted
// code paths; user input never reaches the SQL text.
var batchTables = map[string]map[string]bool{
	"documents":            {"file_name": true, "content": true, "content_hash": true},
	"terms_extracted":      {"term_text": true, "category": true, "user_notes": true},
	"terms_excluded":       {"term_text": true, "source": true, "created_at": true},
	"terms_required":       {"term_text": true, "source": true, "created_at": true},
	"glossary_provisional": {"term_name": true, "definition": true, "confidence": true, "occurrences": true},
	"glossary_refined":     {"term_name": true, "definition": true, "confidence": true, "occurrences": true},
	"glossary_issues":      {"term_name": true, "issue_type": true, "description": true, "should_exclude": true, "exclusion_reason": true},
}

// BatchInsert inserts rows into a whitelisted table in chunks sized to the
// host parameter limit. Every row must have exactly len(columns) values.
func BatchInsert(ctx context.Context, c *Conn, table string, columns []string, rows [][]any) error {
	allowed, ok := batchTables[table]
	if !ok {
		return fmt.Errorf("batch insert into table %q is not permitted", table)
	}
	if len(columns) == 0 {
		return fmt.Errorf("batch insert requires at least one column")
	}
	for _, col := range columns {
		if !allowed[col] {
			return fmt.Errorf("batch insert column %q is not permitted for table %q", col, table)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	rowsPerChunk := maxBatchParams / len(columns)
	if rowsPerChunk < 1 {
		rowsPerChunk = 1
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", ")) // #nosec G201 - table and columns validated against whitelist

	for start := 0; start < len(rows); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if len(row) != len(columns) {
				return fmt.Errorf("batch row %d has %d values, want %d", start+i, len(row), len(columns))
			}
			placeholders[i] = placeholder
			args = append(args, row...)
		}

		if _, err := c.ExecContext(ctx, prefix+strings.Join(placeholders, ", "), args...); err != nil {
			return wrapDBError(fmt.Sprintf("batch insert into %s", table), err)
		}
	}
	return nil
}
