package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/genglossary/genglossary/internal/export"
	"github.com/genglossary/genglossary/internal/registry"
	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

type projectRequest struct {
	Name        string `json:"name"`
	DocRoot     string `json:"doc_root"`
	LLMProvider string `json:"llm_provider"`
	LLMModel    string `json:"llm_model"`
	LLMBaseURL  string `json:"llm_base_url"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.reg.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []types.Project{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", types.ErrValidation))
		return
	}
	if err := registry.ValidateProjectName(req.Name); err != nil {
		writeError(w, err)
		return
	}
	// Name conflicts get a specific 409 before the insert is attempted.
	if _, err := s.reg.GetByName(r.Context(), req.Name); err == nil {
		writeError(w, fmt.Errorf("%w: project name %q is taken", sqlite.ErrConflict, req.Name))
		return
	} else if !sqlite.IsNotFound(err) {
		writeError(w, err)
		return
	}

	p, err := s.reg.Create(r.Context(), &types.Project{
		Name:        req.Name,
		DocRoot:     req.DocRoot,
		DBPath:      registry.DefaultDBPath(s.cfg.ProjectsDir(), req.Name),
		LLMProvider: req.LLMProvider,
		LLMModel:    req.LLMModel,
		LLMBaseURL:  req.LLMBaseURL,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", types.ErrValidation))
		return
	}
	if req.Name != "" && req.Name != p.Name {
		if err := registry.ValidateProjectName(req.Name); err != nil {
			writeError(w, err)
			return
		}
		if _, err := s.reg.GetByName(r.Context(), req.Name); err == nil {
			writeError(w, fmt.Errorf("%w: project name %q is taken", sqlite.ErrConflict, req.Name))
			return
		} else if !sqlite.IsNotFound(err) {
			writeError(w, err)
			return
		}
		p.Name = req.Name
	}
	if req.DocRoot != "" {
		p.DocRoot = req.DocRoot
	}
	if req.LLMProvider != "" {
		p.LLMProvider = req.LLMProvider
	}
	if req.LLMModel != "" {
		p.LLMModel = req.LLMModel
	}
	if req.LLMBaseURL != "" {
		p.LLMBaseURL = req.LLMBaseURL
	}

	updated, err := s.reg.Update(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteProject removes the registry row only; the project database
// file stays on disk.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.reg.Delete(r.Context(), p.ID); err != nil {
		writeError(w, err)
		return
	}
	s.dropHandle(p.ID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": p.ID})
}

type cloneRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCloneProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req cloneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", types.ErrValidation))
		return
	}
	if err := registry.ValidateProjectName(req.Name); err != nil {
		writeError(w, err)
		return
	}
	clone, err := s.reg.Clone(r.Context(), p.ID, req.Name, registry.DefaultDBPath(s.cfg.ProjectsDir(), req.Name))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, clone)
}

// handleExport returns the glossary as Markdown.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h, err := s.handle(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	var doc string
	err = h.db.WithConn(r.Context(), func(c *sqlite.Conn) error {
		doc, err = export.Markdown(r.Context(), c, p.Name)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
