package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// preMigrationSchema is the project schema as it looked before the
// user_notes and exclusion_reason columns existed.
const preMigrationSchema = `
CREATE TABLE IF NOT EXISTS terms_extracted (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_text TEXT NOT NULL UNIQUE,
	category TEXT
);
CREATE TABLE IF NOT EXISTS glossary_issues (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	term_name TEXT NOT NULL,
	issue_type TEXT NOT NULL,
	description TEXT NOT NULL,
	should_exclude INTEGER NOT NULL DEFAULT 0
);
`

func TestForwardMigrationOnOlderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	// Write a pre-migration fixture with the raw driver, including a row
	// that must survive.
	raw, err := sql.Open("sqlite3", connString(path))
	require.NoError(t, err)
	_, err = raw.Exec(preMigrationSchema)
	require.NoError(t, err)
	_, err = raw.Exec(`INSERT INTO terms_extracted (term_text) VALUES ('legacy')`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	db, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	c, err := db.Conn(context.Background())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	// The migrated columns are usable and existing data survived.
	terms, err := ListTerms(context.Background(), c)
	require.NoError(t, err)
	require.Len(t, terms, 1)
	assert.Equal(t, "legacy", terms[0].TermText)
	assert.Empty(t, terms[0].UserNotes)

	require.NoError(t, SetUserNotes(context.Background(), c, terms[0].ID, "migrated"))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening replays bootstrap + migrations against an up-to-date file.
	db, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var n int
	err = db.Pool().QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, len(projectMigrations), n)
}
