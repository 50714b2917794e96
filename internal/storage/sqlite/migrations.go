package sqlite

import (
	"database/sql"
	"fmt"
)

// Migration is a single forward schema migration. Migrations are idempotent:
// each one probes the live schema before modifying it, so re-running the full
// list against any database version is safe.
type Migration struct {
	Name string
	Func func(*sql.DB) error
}

// projectMigrations is the ordered migration list for project databases.
// Bootstrap creates the latest schema, so on fresh files these are no-ops;
// they exist to bring forward files created by earlier releases.
var projectMigrations = []Migration{
	{"user_notes_column", migrateUserNotesColumn},
	{"exclusion_reason_column", migrateExclusionReasonColumn},
	{"llm_base_url_column", migrateLLMBaseURLColumn},
}

// RunMigrations executes the migration list in order, recording each applied
// name in schema_version. An EXCLUSIVE transaction serializes migration runs
// across processes that open the database simultaneously.
func RunMigrations(db *sql.DB, migrations []Migration) error {
	if _, err := db.Exec("BEGIN EXCLUSIVE"); err != nil {
		return fmt.Errorf("failed to acquire exclusive lock for migrations: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	for _, m := range migrations {
		var applied int
		err := db.QueryRow(`SELECT COUNT(*) FROM schema_version WHERE name = ?`, m.Name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", m.Name, err)
		}
		if applied > 0 {
			continue
		}
		if err := m.Func(db); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (name, applied_at) VALUES (?, ?)`, m.Name, NowUTC()); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.Name, err)
		}
	}

	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	committed = true
	return nil
}

// columnExists probes table_info for a column. Migrations use it so ALTER
// TABLE ADD COLUMN stays idempotent on databases that already have the column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// migrateUserNotesColumn adds terms_extracted.user_notes to pre-notes files.
func migrateUserNotesColumn(db *sql.DB) error {
	exists, err := columnExists(db, "terms_extracted", "user_notes")
	if err != nil || exists {
		return err
	}
	_, err = db.Exec(`ALTER TABLE terms_extracted ADD COLUMN user_notes TEXT NOT NULL DEFAULT ''`)
	return err
}

// migrateExclusionReasonColumn adds glossary_issues.exclusion_reason.
func migrateExclusionReasonColumn(db *sql.DB) error {
	exists, err := columnExists(db, "glossary_issues", "exclusion_reason")
	if err != nil || exists {
		return err
	}
	_, err = db.Exec(`ALTER TABLE glossary_issues ADD COLUMN exclusion_reason TEXT`)
	return err
}

// migrateLLMBaseURLColumn adds metadata.llm_base_url.
func migrateLLMBaseURLColumn(db *sql.DB) error {
	exists, err := columnExists(db, "metadata", "llm_base_url")
	if err != nil || exists {
		return err
	}
	_, err = db.Exec(`ALTER TABLE metadata ADD COLUMN llm_base_url TEXT NOT NULL DEFAULT ''`)
	return err
}
