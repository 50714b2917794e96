package sqlite

// projectSchema is the per-project database schema. Bootstrap is idempotent;
// older files are brought forward by the migrations in migrations.go.
const projectSchema = `
-- Single-row project configuration (id = 1 enforced by UPSERT)
CREATE TABLE IF NOT EXISTS metadata (
    id INTEGER PRIMARY KEY CHECK(id = 1),
    input_path TEXT NOT NULL DEFAULT '',
    llm_provider TEXT NOT NULL DEFAULT '',
    llm_model TEXT NOT NULL DEFAULT '',
    llm_base_url TEXT NOT NULL DEFAULT ''
);

-- Source documents; file_name is a POSIX relative path inside doc_root
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    file_name TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL,
    content_hash TEXT NOT NULL
);

-- Candidate terms from extraction
CREATE TABLE IF NOT EXISTS terms_extracted (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    term_text TEXT NOT NULL UNIQUE,
    category TEXT,
    user_notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS terms_excluded (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    term_text TEXT NOT NULL UNIQUE,
    source TEXT NOT NULL DEFAULT 'manual' CHECK(source IN ('auto', 'manual')),
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS terms_required (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    term_text TEXT NOT NULL UNIQUE,
    source TEXT NOT NULL DEFAULT 'manual' CHECK(source IN ('auto', 'manual')),
    created_at TEXT NOT NULL
);

-- First-pass glossary; occurrences is a JSON array of
-- {document_path, line_number, context}
CREATE TABLE IF NOT EXISTS glossary_provisional (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    term_name TEXT NOT NULL UNIQUE,
    definition TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0 CHECK(confidence >= 0 AND confidence <= 1),
    occurrences TEXT NOT NULL DEFAULT '[]'
);

-- Post-review glossary, identical shape
CREATE TABLE IF NOT EXISTS glossary_refined (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    term_name TEXT NOT NULL UNIQUE,
    definition TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0 CHECK(confidence >= 0 AND confidence <= 1),
    occurrences TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS glossary_issues (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    term_name TEXT NOT NULL,
    issue_type TEXT NOT NULL CHECK(issue_type IN ('unclear', 'contradiction', 'missing_relation', 'unnecessary')),
    description TEXT NOT NULL DEFAULT '',
    should_exclude INTEGER NOT NULL DEFAULT 0,
    exclusion_reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_glossary_issues_term ON glossary_issues(term_name);

-- Synonym groups; a term belongs to at most one group (UNIQUE on member text)
-- and the primary term must also appear as a member (repository invariant).
CREATE TABLE IF NOT EXISTS term_synonym_groups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    primary_term_text TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS term_synonym_members (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    group_id INTEGER NOT NULL,
    term_text TEXT NOT NULL UNIQUE,
    FOREIGN KEY (group_id) REFERENCES term_synonym_groups(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_synonym_members_group ON term_synonym_members(group_id);

-- Pipeline run lifecycle. At most one row may hold a non-terminal status
-- (pending or running) at any time; the run manager enforces this inside an
-- IMMEDIATE transaction.
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    scope TEXT NOT NULL CHECK(scope IN ('full', 'extract', 'generate', 'review', 'refine')),
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'running', 'completed', 'failed', 'cancelled')),
    started_at TEXT,
    finished_at TEXT,
    triggered_by TEXT NOT NULL DEFAULT '',
    error_message TEXT,
    progress_current INTEGER NOT NULL DEFAULT 0,
    progress_total INTEGER NOT NULL DEFAULT 0,
    current_step TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);

-- Schema version bookkeeping for forward migration
CREATE TABLE IF NOT EXISTS schema_version (
    name TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`
