package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

type startRunRequest struct {
	Scope string `json:"scope"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", types.ErrValidation))
		return
	}
	scope := types.RunScope(req.Scope)
	if !scope.IsValid() {
		writeError(w, fmt.Errorf("%w: unknown run scope %q", types.ErrValidation, req.Scope))
		return
	}

	h, err := s.handle(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	if !h.llm.Available(r.Context()) {
		writeError(w, types.ErrLLMUnavailable)
		return
	}

	run, err := h.manager.StartRun(r.Context(), scope, "api")
	if err != nil {
		writeError(w, err)
		return
	}
	now := time.Now().UTC()
	if err := s.reg.SetStatus(r.Context(), p.ID, types.ProjectRunning, &now); err != nil {
		s.log.Warn().Err(err).Int64("project_id", p.ID).Msg("registry status update failed")
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
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
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	var runs []types.Run
	err = h.db.WithConn(r.Context(), func(c *sqlite.Conn) error {
		runs, err = sqlite.ListRuns(r.Context(), c, limit)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []types.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// handleCurrentRun returns the active run if any, else the most recent one,
// so a status view still shows the last completion after finish.
func (s *Server) handleCurrentRun(w http.ResponseWriter, r *http.Request) {
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
	var run *types.Run
	err = h.db.WithConn(r.Context(), func(c *sqlite.Conn) error {
		run, err = sqlite.GetCurrentOrLatest(r.Context(), c)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	runID, err := strconv.ParseInt(r.PathValue("runID"), 10, 64)
	if err != nil {
		writeError(w, types.ErrValidation)
		return
	}
	h, err := s.handle(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	var run *types.Run
	err = h.db.WithConn(r.Context(), func(c *sqlite.Conn) error {
		run, err = sqlite.GetRun(r.Context(), c, runID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleCancelRun is idempotent: cancelling a terminal run is a success no-op.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	runID, err := strconv.ParseInt(r.PathValue("runID"), 10, 64)
	if err != nil {
		writeError(w, types.ErrValidation)
		return
	}
	h, err := s.handle(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.manager.Cancel(r.Context(), runID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "cancelled": true})
}

// handleRunLogs streams the run's log bus as Server-Sent Events. The stream
// ends after the terminal complete marker.
func (s *Server) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	p, err := s.project(r)
	if err != nil {
		writeError(w, err)
		return
	}
	runID, err := strconv.ParseInt(r.PathValue("runID"), 10, 64)
	if err != nil {
		writeError(w, types.ErrValidation)
		return
	}
	h, err := s.handle(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}

	// Subscribe before reading the status so no marker is missed between
	// the status read and the subscription.
	events, unsubscribe := h.bus.Subscribe(runID)
	defer unsubscribe()

	var run *types.Run
	err = h.db.WithConn(r.Context(), func(c *sqlite.Conn) error {
		run, err = sqlite.GetRun(r.Context(), c, runID)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(event string, payload any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	if run.Status.IsTerminal() {
		send("complete", map[string]any{"run_id": runID, "status": run.Status})
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Complete {
				send("complete", e)
				return
			}
			send("log", e)
		}
	}
}
