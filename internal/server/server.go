// Package server is the HTTP boundary: a thin adapter surfacing the run
// manager, registry, and repositories over REST and SSE.
package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/genglossary/genglossary/internal/config"
	"github.com/genglossary/genglossary/internal/llm"
	"github.com/genglossary/genglossary/internal/logbus"
	"github.com/genglossary/genglossary/internal/pipeline"
	"github.com/genglossary/genglossary/internal/registry"
	"github.com/genglossary/genglossary/internal/runner"
	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

// Server routes HTTP requests to per-project resources. Project databases
// and run managers are opened lazily and cached for the process lifetime.
type Server struct {
	cfg *config.Config
	reg *registry.Registry
	log zerolog.Logger

	mu      sync.Mutex
	handles map[int64]*projectHandle
}

// projectHandle bundles one project's open database, log bus, LLM client,
// and run manager.
type projectHandle struct {
	db      *sqlite.DB
	bus     *logbus.Bus
	llm     llm.Client
	manager *runner.Manager
}

// New builds a server over an open registry.
func New(cfg *config.Config, reg *registry.Registry, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		reg:     reg,
		log:     logger,
		handles: make(map[int64]*projectHandle),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /projects", s.handleListProjects)
	mux.HandleFunc("POST /projects", s.handleCreateProject)
	mux.HandleFunc("GET /projects/{id}", s.handleGetProject)
	mux.HandleFunc("PATCH /projects/{id}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("POST /projects/{id}/clone", s.handleCloneProject)
	mux.HandleFunc("GET /projects/{id}/export", s.handleExport)

	mux.HandleFunc("POST /projects/{id}/runs", s.handleStartRun)
	mux.HandleFunc("GET /projects/{id}/runs", s.handleListRuns)
	mux.HandleFunc("GET /projects/{id}/runs/current", s.handleCurrentRun)
	mux.HandleFunc("GET /projects/{id}/runs/{runID}", s.handleGetRun)
	mux.HandleFunc("DELETE /projects/{id}/runs/{runID}", s.handleCancelRun)
	mux.HandleFunc("GET /projects/{id}/runs/{runID}/logs", s.handleRunLogs)

	mux.HandleFunc("GET /projects/{id}/documents", s.handleListDocuments)
	mux.HandleFunc("POST /projects/{id}/documents", s.handleUploadDocument)
	mux.HandleFunc("DELETE /projects/{id}/documents/{docID}", s.handleDeleteDocument)

	mux.HandleFunc("GET /projects/{id}/terms", s.handleListTerms)
	mux.HandleFunc("PUT /projects/{id}/terms/{termID}/notes", s.handleSetNotes)
	mux.HandleFunc("GET /projects/{id}/terms/excluded", s.handleListExcluded)
	mux.HandleFunc("POST /projects/{id}/terms/excluded", s.handleAddExcluded)
	mux.HandleFunc("DELETE /projects/{id}/terms/excluded/{text}", s.handleRemoveExcluded)
	mux.HandleFunc("GET /projects/{id}/terms/required", s.handleListRequired)
	mux.HandleFunc("POST /projects/{id}/terms/required", s.handleAddRequired)
	mux.HandleFunc("DELETE /projects/{id}/terms/required/{text}", s.handleRemoveRequired)

	mux.HandleFunc("GET /projects/{id}/glossary", s.handleGlossary)
	mux.HandleFunc("GET /projects/{id}/issues", s.handleIssues)
	mux.HandleFunc("GET /projects/{id}/synonyms", s.handleListSynonyms)
	mux.HandleFunc("POST /projects/{id}/synonyms", s.handleCreateSynonyms)
	mux.HandleFunc("DELETE /projects/{id}/synonyms/{groupID}", s.handleDeleteSynonyms)

	return mux
}

// Close shuts every cached project handle. Active workers are waited for.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.handles {
		h.manager.Wait()
		if err := h.db.Close(); err != nil {
			s.log.Warn().Err(err).Int64("project_id", id).Msg("project db close failed")
		}
		delete(s.handles, id)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// project resolves the {id} path segment to its registry record.
func (s *Server) project(r *http.Request) (*types.Project, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return nil, types.ErrValidation
	}
	return s.reg.Get(r.Context(), id)
}

// handle returns the cached handle for a project, opening its database and
// building its run manager on first use.
func (s *Server) handle(ctx context.Context, p *types.Project) (*projectHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[p.ID]; ok {
		return h, nil
	}

	db, err := sqlite.Open(p.DBPath)
	if err != nil {
		return nil, err
	}

	client, err := llm.New(s.llmConfig(p))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	bus := logbus.New()
	exec := pipeline.New(client, pipeline.WithBatchSize(s.cfg.BatchSize))
	projectID := p.ID
	mgr := runner.New(db, bus, exec, p.DocRoot, s.log.With().Int64("project_id", p.ID).Logger(),
		runner.WithTerminalHook(func(runID int64, status types.RunStatus) {
			s.recordOutcome(projectID, status)
		}),
	)

	h := &projectHandle{db: db, bus: bus, llm: client, manager: mgr}
	s.handles[p.ID] = h
	return h, nil
}

// llmConfig overlays project LLM settings on the process defaults.
func (s *Server) llmConfig(p *types.Project) llm.Config {
	cfg := llm.Config{
		Provider: s.cfg.LLMProvider,
		Model:    s.cfg.LLMModel,
		BaseURL:  s.cfg.LLMBaseURL,
		Timeout:  s.cfg.LLMTimeout,
	}
	if p.LLMProvider != "" {
		cfg.Provider = p.LLMProvider
	}
	if p.LLMModel != "" {
		cfg.Model = p.LLMModel
	}
	if p.LLMBaseURL != "" {
		cfg.BaseURL = p.LLMBaseURL
	}
	return cfg
}

// recordOutcome mirrors a run's terminal status into the registry.
func (s *Server) recordOutcome(projectID int64, status types.RunStatus) {
	projectStatus := types.ProjectCreated
	switch status {
	case types.RunCompleted:
		projectStatus = types.ProjectCompleted
	case types.RunFailed:
		projectStatus = types.ProjectError
	}
	now := time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.reg.SetStatus(ctx, projectID, projectStatus, &now); err != nil {
		s.log.Warn().Err(err).Int64("project_id", projectID).Msg("registry status update failed")
	}
}

// dropHandle closes and forgets a cached handle, used when a project is
// deleted. Callers must ensure no run is active.
func (s *Server) dropHandle(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[id]; ok {
		h.manager.Wait()
		_ = h.db.Close()
		delete(s.handles, id)
	}
}
