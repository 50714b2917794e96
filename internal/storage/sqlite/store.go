// Package sqlite implements the project and registry persistence substrate
// on a single-file embedded SQLite database.
//
// Layout:
//   - store.go: DB/Conn types, Open, pragmas, WASM cache setup
//   - transaction.go: nested savepoint transactions and IMMEDIATE transactions
//   - batch.go: whitelisted multi-row inserts
//   - schema.go: project database schema
//   - migrations.go: schema_version bookkeeping and forward migrations
//   - timeutil.go: RFC3339 UTC timestamp helpers
//   - one file per table for repository functions (documents.go, terms.go,
//     termlists.go, glossary.go, issues.go, synonyms.go, runs.go, metadata.go)
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"
)

// DB wraps the connection pool for one database file.
type DB struct {
	db     *sql.DB
	path   string
	closed atomic.Bool
}

// setupWASMCache configures WASM compilation caching so the embedded SQLite
// build is compiled once per driver version instead of on every process start.
// Falls back to an in-memory cache when the cache directory cannot be created.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "genglossary", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// connString builds the driver URI for a database path. Every connection gets
// foreign keys ON and a 5s busy timeout; cross-process writers block on the
// busy timeout rather than failing immediately.
func connString(path string) string {
	const pragmas = "_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	if path == ":memory:" {
		// Shared cache so multiple pool connections see the same data.
		// WAL does not work for in-memory databases.
		return "file:memdb?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&" + pragmas
	}
	if strings.HasPrefix(path, "file:") {
		if strings.Contains(path, "?") {
			return path + "&" + pragmas
		}
		return path + "?" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

func isInMemory(path string) bool {
	return path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
}

// Open opens (creating if necessary) the project database at path, applies
// connection pragmas, bootstraps the schema, and runs forward migrations.
func Open(path string) (*DB, error) {
	return open(path, projectSchema, projectMigrations)
}

// OpenRaw opens a database without schema bootstrap. The registry package
// uses it with its own schema and migration list.
func OpenRaw(path string, schema string, migrations []Migration) (*DB, error) {
	return open(path, schema, migrations)
}

func open(path, schema string, migrations []Migration) (*DB, error) {
	if !isInMemory(path) && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", connString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory(path) {
		// In-memory databases are isolated per connection without shared
		// cache plus a single pooled connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// 1 writer + N readers under WAL; cap the pool to avoid goroutine
		// pile-up on write lock contention.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if schema != "" {
		if _, err := db.Exec(schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		if err := RunMigrations(db, migrations); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &DB{db: db, path: path}, nil
}

// Path returns the database file path this DB was opened with.
func (d *DB) Path() string { return d.path }

// Close closes the pool. Safe to call more than once.
func (d *DB) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.db.Close()
}

// Pool exposes the underlying pool for read-only API queries that do not
// need a dedicated connection.
func (d *DB) Pool() *sql.DB { return d.db }

// Conn is a dedicated database connection with transaction-depth tracking.
// Repository functions run on a Conn so that nested Tx calls on the same
// connection become savepoints.
type Conn struct {
	sc      *sql.Conn
	txDepth int
}

// Conn acquires a dedicated connection from the pool. The caller must Close it.
func (d *DB) Conn(ctx context.Context) (*Conn, error) {
	sc, err := d.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Conn{sc: sc}, nil
}

// WithConn acquires a connection, runs fn, and releases the connection.
func (d *DB) WithConn(ctx context.Context, fn func(*Conn) error) error {
	c, err := d.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return fn(c)
}

// Close returns the connection to the pool.
func (c *Conn) Close() error { return c.sc.Close() }

// InTx reports whether a transaction is active on this connection.
func (c *Conn) InTx() bool { return c.txDepth > 0 }

// ExecContext runs a statement on this connection.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.sc.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on this connection.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.sc.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on this connection.
func (c *Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.sc.QueryRowContext(ctx, query, args...)
}
