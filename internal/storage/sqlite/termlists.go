package sqlite

import (
	"context"
	"fmt"

	"github.com/genglossary/genglossary/internal/types"
)

// Term list tables served by the generic repository below. The table name is
// interpolated into SQL text, so every entry point validates against this
// whitelist first — it is the only SQL-injection barrier on this path.
const (
	TableExcluded = "terms_excluded"
	TableRequired = "terms_required"
)

var termListTables = map[string]bool{
	TableExcluded: true,
	TableRequired: true,
}

func checkTermListTable(table string) error {
	if !termListTables[table] {
		return fmt.Errorf("%w: unknown term list table %q", types.ErrValidation, table)
	}
	return nil
}

// AddListedTerm inserts a term into terms_excluded or terms_required.
func AddListedTerm(ctx context.Context, c *Conn, table, termText string, source types.TermSource) (int64, error) {
	if err := checkTermListTable(table); err != nil {
		return 0, err
	}
	res, err := c.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (term_text, source, created_at) VALUES (?, ?, ?)`, table), // #nosec G201 - table validated against whitelist
		termText, string(source), NowUTC())
	if err != nil {
		return 0, wrapDBError("add term to "+table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrapDBError("add term to "+table, err)
	}
	return id, nil
}

// AddListedTermsBatch inserts many terms with a shared source in one batch.
// Terms already present are left untouched (INSERT OR IGNORE semantics are
// deliberate: auto-exclusion must not clobber manual entries).
func AddListedTermsBatch(ctx context.Context, c *Conn, table string, termTexts []string, source types.TermSource) error {
	if err := checkTermListTable(table); err != nil {
		return err
	}
	now := NowUTC()
	for _, text := range termTexts {
		if _, err := c.ExecContext(ctx,
			fmt.Sprintf(`INSERT OR IGNORE INTO %s (term_text, source, created_at) VALUES (?, ?, ?)`, table), // #nosec G201 - table validated against whitelist
			text, string(source), now); err != nil {
			return wrapDBError("batch add terms to "+table, err)
		}
	}
	return nil
}

// RemoveListedTerm deletes a term from the list by text.
func RemoveListedTerm(ctx context.Context, c *Conn, table, termText string) error {
	if err := checkTermListTable(table); err != nil {
		return err
	}
	res, err := c.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE term_text = ?`, table), termText) // #nosec G201 - table validated against whitelist
	if err != nil {
		return wrapDBError("remove term from "+table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("remove term from "+table, err)
	}
	if n == 0 {
		return fmt.Errorf("remove %q from %s: %w", termText, table, ErrNotFound)
	}
	return nil
}

// ListListedTerms returns the full list ordered by text. Required terms that
// are also excluded appear in both listings; the unified term view is where
// the override is applied.
func ListListedTerms(ctx context.Context, c *Conn, table string) ([]types.ListedTerm, error) {
	if err := checkTermListTable(table); err != nil {
		return nil, err
	}
	rows, err := c.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, term_text, source, created_at FROM %s ORDER BY term_text`, table)) // #nosec G201 - table validated against whitelist
	if err != nil {
		return nil, wrapDBError("list "+table, err)
	}
	defer func() { _ = rows.Close() }()

	var terms []types.ListedTerm
	for rows.Next() {
		var t types.ListedTerm
		var source, createdAt string
		if err := rows.Scan(&t.ID, &t.TermText, &source, &createdAt); err != nil {
			return nil, wrapDBError("scan "+table, err)
		}
		t.Source = types.TermSource(source)
		if t.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, wrapDBError("list "+table, rows.Err())
}

// IsTermListed reports whether a term text appears in the given list.
func IsTermListed(ctx context.Context, c *Conn, table, termText string) (bool, error) {
	if err := checkTermListTable(table); err != nil {
		return false, err
	}
	var n int
	err := c.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE term_text = ?`, table), termText).Scan(&n) // #nosec G201 - table validated against whitelist
	return n > 0, wrapDBError("check "+table, err)
}
