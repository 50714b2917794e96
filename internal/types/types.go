// Package types defines core data structures for the genglossary pipeline.
package types

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// RunScope selects which pipeline stages a run executes.
type RunScope string

const (
	// ScopeFull runs generate → review → refine. Extraction is not part of
	// full; it is triggered on its own scope when source files change.
	ScopeFull RunScope = "full"
	// ScopeExtract runs candidate term extraction only.
	ScopeExtract RunScope = "extract"
	// ScopeGenerate runs provisional definition generation only.
	ScopeGenerate RunScope = "generate"
	// ScopeReview runs glossary review only.
	ScopeReview RunScope = "review"
	// ScopeRefine runs refinement only.
	ScopeRefine RunScope = "refine"
)

// IsValid reports whether the scope is one of the known stage selections.
func (s RunScope) IsValid() bool {
	switch s {
	case ScopeFull, ScopeExtract, ScopeGenerate, ScopeReview, ScopeRefine:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether the status is final. Exactly one row per
// project may hold a non-terminal status at any time.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Run is the lifecycle record for a single pipeline invocation.
type Run struct {
	ID              int64      `json:"id"`
	Scope           RunScope   `json:"scope"`
	Status          RunStatus  `json:"status"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	TriggeredBy     string     `json:"triggered_by,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ProgressCurrent int        `json:"progress_current"`
	ProgressTotal   int        `json:"progress_total"`
	CurrentStep     string     `json:"current_step,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Active reports whether the run still holds the project's single-active-run slot.
func (r *Run) Active() bool {
	return !r.Status.IsTerminal()
}

// ProjectStatus is the registry-level state of a project.
type ProjectStatus string

const (
	ProjectCreated   ProjectStatus = "created"
	ProjectRunning   ProjectStatus = "running"
	ProjectCompleted ProjectStatus = "completed"
	ProjectError     ProjectStatus = "error"
)

// Project is a registry entry pointing at a per-project database.
type Project struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	DocRoot     string        `json:"doc_root,omitempty"`
	DBPath      string        `json:"db_path"`
	LLMProvider string        `json:"llm_provider,omitempty"`
	LLMModel    string        `json:"llm_model,omitempty"`
	LLMBaseURL  string        `json:"llm_base_url,omitempty"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	LastRunAt   *time.Time    `json:"last_run_at,omitempty"`
}

// Document is one source file stored in a project database. FileName is a
// POSIX relative path inside the project's doc_root.
type Document struct {
	ID          int64  `json:"id"`
	FileName    string `json:"file_name"`
	Content     string `json:"content"`
	ContentHash string `json:"content_hash"`
}

// HashContent returns the SHA-256 hex digest used for documents.content_hash.
func HashContent(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
}

// Term is a candidate glossary term produced by extraction.
type Term struct {
	ID        int64  `json:"id"`
	TermText  string `json:"term_text"`
	Category  string `json:"category,omitempty"`
	UserNotes string `json:"user_notes"`
}

// TermSource records how a term entered the excluded or required list.
type TermSource string

const (
	SourceAuto   TermSource = "auto"
	SourceManual TermSource = "manual"
)

// ListedTerm is one row of a term list (excluded or required).
type ListedTerm struct {
	ID        int64      `json:"id"`
	TermText  string     `json:"term_text"`
	Source    TermSource `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
}

// Occurrence records one place a term appeared in the source documents.
type Occurrence struct {
	DocumentPath string `json:"document_path"`
	LineNumber   int    `json:"line_number"`
	Context      string `json:"context"`
}

// GlossaryEntry is a term definition in the provisional or refined glossary.
type GlossaryEntry struct {
	ID          int64        `json:"id"`
	TermName    string       `json:"term_name"`
	Definition  string       `json:"definition"`
	Confidence  float64      `json:"confidence"`
	Occurrences []Occurrence `json:"occurrences,omitempty"`
}

// IssueType classifies a problem the review stage found with a definition.
type IssueType string

const (
	IssueUnclear         IssueType = "unclear"
	IssueContradiction   IssueType = "contradiction"
	IssueMissingRelation IssueType = "missing_relation"
	IssueUnnecessary     IssueType = "unnecessary"
)

// IsValid reports whether the issue type is one of the known categories.
func (t IssueType) IsValid() bool {
	switch t {
	case IssueUnclear, IssueContradiction, IssueMissingRelation, IssueUnnecessary:
		return true
	}
	return false
}

// GlossaryIssue is one problem the review stage recorded against a term.
type GlossaryIssue struct {
	ID              int64     `json:"id"`
	TermName        string    `json:"term_name"`
	IssueType       IssueType `json:"issue_type"`
	Description     string    `json:"description"`
	ShouldExclude   bool      `json:"should_exclude"`
	ExclusionReason string    `json:"exclusion_reason,omitempty"`
}

// SynonymGroup collects term spellings that share one glossary entry.
// The primary term must also appear as a member.
type SynonymGroup struct {
	ID          int64    `json:"id"`
	PrimaryTerm string   `json:"primary_term_text"`
	Members     []string `json:"members"`
}

// Metadata is the single-row project configuration record (id = 1).
type Metadata struct {
	InputPath   string `json:"input_path"`
	LLMProvider string `json:"llm_provider,omitempty"`
	LLMModel    string `json:"llm_model,omitempty"`
	LLMBaseURL  string `json:"llm_base_url,omitempty"`
}
