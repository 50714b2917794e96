// Package registry maintains the process-wide directory of projects and
// their database locations. Each project's state lives in its own database
// file; the registry only records where to find it.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

const registrySchema = `
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    doc_root TEXT NOT NULL DEFAULT '',
    db_path TEXT NOT NULL UNIQUE,
    llm_provider TEXT NOT NULL DEFAULT '',
    llm_model TEXT NOT NULL DEFAULT '',
    llm_base_url TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'created' CHECK(status IN ('created', 'running', 'completed', 'error')),
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    last_run_at TEXT
);

CREATE TABLE IF NOT EXISTS schema_version (
    name TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// registryMigrations brings forward registry files created before the
// llm_base_url column existed.
var registryMigrations = []sqlite.Migration{
	{Name: "llm_base_url_column", Func: migrateLLMBaseURL},
}

func migrateLLMBaseURL(db *sql.DB) error {
	rows, err := db.Query(`PRAGMA table_info(projects)`)
	if err != nil {
		return fmt.Errorf("failed to inspect projects table: %w", err)
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
			return err
		}
		if name == "llm_base_url" {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	_, err = db.Exec(`ALTER TABLE projects ADD COLUMN llm_base_url TEXT NOT NULL DEFAULT ''`)
	return err
}

// validName matches project names: letters, digits, hyphens, underscores,
// dots; must start with a letter or digit.
var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Registry is the projects directory backed by the registry database.
// Mutations that create or remove rows additionally take a cross-process
// file lock so two processes cannot race on name/path allocation.
type Registry struct {
	db   *sqlite.DB
	lock *flock.Flock
}

// Open opens (creating if needed) the registry database at path.
func Open(path string) (*Registry, error) {
	db, err := sqlite.OpenRaw(path, registrySchema, registryMigrations)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	var lk *flock.Flock
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		lk = flock.New(path + ".lock")
	}
	return &Registry{db: db, lock: lk}, nil
}

// Close closes the registry database.
func (r *Registry) Close() error { return r.db.Close() }

// withFileLock runs fn holding the registry's cross-process lock. In-memory
// registries (tests) have no lock file and run fn directly.
func (r *Registry) withFileLock(ctx context.Context, fn func() error) error {
	if r.lock == nil {
		return fn()
	}
	locked, err := r.lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire registry lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("registry lock unavailable")
	}
	defer func() { _ = r.lock.Unlock() }()
	return fn()
}

// ValidateProjectName rejects malformed project names.
func ValidateProjectName(name string) error {
	if name == "" || len(name) > 128 || !validName.MatchString(name) {
		return fmt.Errorf("%w: invalid project name %q", types.ErrValidation, name)
	}
	return nil
}

// DefaultDBPath returns the conventional project database location under root.
func DefaultDBPath(root, name string) string {
	return filepath.Join(root, "projects", name, "project.db")
}

// Create registers a new project. Name and db_path are unique; violations
// surface as ErrConflict.
func (r *Registry) Create(ctx context.Context, p *types.Project) (*types.Project, error) {
	if err := ValidateProjectName(p.Name); err != nil {
		return nil, err
	}
	if p.DBPath == "" {
		return nil, fmt.Errorf("%w: db_path is required", types.ErrValidation)
	}
	var created *types.Project
	err := r.withFileLock(ctx, func() error {
		return r.db.WithConn(ctx, func(c *sqlite.Conn) error {
			now := sqlite.NowUTC()
			res, err := c.ExecContext(ctx, `
				INSERT INTO projects (name, doc_root, db_path, llm_provider, llm_model, llm_base_url, status, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, 'created', ?, ?)
			`, p.Name, p.DocRoot, p.DBPath, p.LLMProvider, p.LLMModel, p.LLMBaseURL, now, now)
			if err != nil {
				return wrapErr("create project", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return wrapErr("create project", err)
			}
			created, err = r.getOn(ctx, c, id)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

const projectColumns = `id, name, doc_root, db_path, llm_provider, llm_model,
	llm_base_url, status, created_at, updated_at, last_run_at`

func scanProject(scan func(dest ...any) error) (*types.Project, error) {
	var p types.Project
	var createdAt, updatedAt string
	var lastRunAt *string
	err := scan(&p.ID, &p.Name, &p.DocRoot, &p.DBPath, &p.LLMProvider,
		&p.LLMModel, &p.LLMBaseURL, &p.Status, &createdAt, &updatedAt, &lastRunAt)
	if err != nil {
		return nil, err
	}
	if p.CreatedAt, err = sqlite.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = sqlite.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if lastRunAt != nil && *lastRunAt != "" {
		t, err := sqlite.ParseTime(*lastRunAt)
		if err != nil {
			return nil, err
		}
		p.LastRunAt = &t
	}
	return &p, nil
}

func (r *Registry) getOn(ctx context.Context, c *sqlite.Conn, id int64) (*types.Project, error) {
	row := c.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row.Scan)
	if err != nil {
		return nil, wrapErr("get project", err)
	}
	return p, nil
}

// Get fetches a project by id.
func (r *Registry) Get(ctx context.Context, id int64) (*types.Project, error) {
	var p *types.Project
	err := r.db.WithConn(ctx, func(c *sqlite.Conn) error {
		var err error
		p, err = r.getOn(ctx, c, id)
		return err
	})
	return p, err
}

// GetByName fetches a project by its unique name.
func (r *Registry) GetByName(ctx context.Context, name string) (*types.Project, error) {
	var p *types.Project
	err := r.db.WithConn(ctx, func(c *sqlite.Conn) error {
		row := c.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = ?`, name)
		var err error
		p, err = scanProject(row.Scan)
		return wrapErr("get project by name", err)
	})
	return p, err
}

// List returns all projects ordered by name.
func (r *Registry) List(ctx context.Context) ([]types.Project, error) {
	var projects []types.Project
	err := r.db.WithConn(ctx, func(c *sqlite.Conn) error {
		rows, err := c.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
		if err != nil {
			return wrapErr("list projects", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			p, err := scanProject(rows.Scan)
			if err != nil {
				return wrapErr("scan project", err)
			}
			projects = append(projects, *p)
		}
		return wrapErr("list projects", rows.Err())
	})
	return projects, err
}

// Update applies settings changes. Callers pre-check name conflicts when they
// need a specific conflict status; the UNIQUE constraint is the backstop.
func (r *Registry) Update(ctx context.Context, p *types.Project) (*types.Project, error) {
	if err := ValidateProjectName(p.Name); err != nil {
		return nil, err
	}
	var updated *types.Project
	err := r.db.WithConn(ctx, func(c *sqlite.Conn) error {
		res, err := c.ExecContext(ctx, `
			UPDATE projects SET name = ?, doc_root = ?, llm_provider = ?, llm_model = ?,
				llm_base_url = ?, updated_at = ?
			WHERE id = ?
		`, p.Name, p.DocRoot, p.LLMProvider, p.LLMModel, p.LLMBaseURL, sqlite.NowUTC(), p.ID)
		if err != nil {
			return wrapErr("update project", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapErr("update project", err)
		}
		if n == 0 {
			return fmt.Errorf("update project %d: %w", p.ID, sqlite.ErrNotFound)
		}
		updated, err = r.getOn(ctx, c, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetStatus records registry-level project status and, for terminal pipeline
// outcomes, the last run time.
func (r *Registry) SetStatus(ctx context.Context, id int64, status types.ProjectStatus, lastRunAt *time.Time) error {
	return r.db.WithConn(ctx, func(c *sqlite.Conn) error {
		var lastRun any
		if lastRunAt != nil {
			ts, err := sqlite.FormatTime(*lastRunAt)
			if err != nil {
				return err
			}
			lastRun = ts
		}
		res, err := c.ExecContext(ctx, `
			UPDATE projects SET status = ?, last_run_at = COALESCE(?, last_run_at), updated_at = ?
			WHERE id = ?
		`, string(status), lastRun, sqlite.NowUTC(), id)
		if err != nil {
			return wrapErr("set project status", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return wrapErr("set project status", err)
		}
		if n == 0 {
			return fmt.Errorf("set status for project %d: %w", id, sqlite.ErrNotFound)
		}
		return nil
	})
}

// Clone copies a project's settings under a new name and database path,
// resetting status to created and last_run_at to null. The project database
// file itself is not copied.
func (r *Registry) Clone(ctx context.Context, id int64, newName, newDBPath string) (*types.Project, error) {
	if err := ValidateProjectName(newName); err != nil {
		return nil, err
	}
	src, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	clone := &types.Project{
		Name:        newName,
		DocRoot:     src.DocRoot,
		DBPath:      newDBPath,
		LLMProvider: src.LLMProvider,
		LLMModel:    src.LLMModel,
		LLMBaseURL:  src.LLMBaseURL,
	}
	return r.Create(ctx, clone)
}

// Delete removes the registry row only; the project database file is never
// deleted here.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	return r.withFileLock(ctx, func() error {
		return r.db.WithConn(ctx, func(c *sqlite.Conn) error {
			res, err := c.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
			if err != nil {
				return wrapErr("delete project", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return wrapErr("delete project", err)
			}
			if n == 0 {
				return fmt.Errorf("delete project %d: %w", id, sqlite.ErrNotFound)
			}
			return nil
		})
	})
}

// wrapErr maps driver errors to the storage sentinels (sql.ErrNoRows →
// ErrNotFound, constraint failures → ErrConflict).
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sqlite.ErrNotFound)
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "FOREIGN KEY constraint failed") {
		return fmt.Errorf("%s: %w", op, sqlite.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
