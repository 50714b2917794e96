package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

// withProjectConn resolves the project, opens its handle, and runs fn on a
// pooled reader connection.
func (s *Server) withProjectConn(w http.ResponseWriter, r *http.Request, fn func(*sqlite.Conn) error) bool {
	p, err := s.project(r)
	if err != nil {
		writeError(w, err)
		return false
	}
	h, err := s.handle(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return false
	}
	if err := h.db.WithConn(r.Context(), fn); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	var docs []types.Document
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		var err error
		docs, err = sqlite.ListDocuments(r.Context(), c)
		return err
	})
	if !ok {
		return
	}
	if docs == nil {
		docs = []types.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

type uploadDocumentRequest struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	var req uploadDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", types.ErrValidation))
		return
	}
	if err := sqlite.ValidateDocumentPath(req.FileName); err != nil {
		writeError(w, err)
		return
	}
	doc := types.Document{
		FileName:    req.FileName,
		Content:     req.Content,
		ContentHash: types.HashContent(req.Content),
	}
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		id, err := sqlite.InsertDocument(r.Context(), c, &doc)
		doc.ID = id
		return err
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	docID, err := strconv.ParseInt(r.PathValue("docID"), 10, 64)
	if err != nil {
		writeError(w, types.ErrValidation)
		return
	}
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		return sqlite.DeleteDocument(r.Context(), c, docID)
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": docID})
}

// handleListTerms returns the unified listing: extracted minus excluded plus
// required, with negative synthetic ids marking required-only rows.
func (s *Server) handleListTerms(w http.ResponseWriter, r *http.Request) {
	var terms []types.Term
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		var err error
		terms, err = sqlite.ListAllTerms(r.Context(), c)
		return err
	})
	if !ok {
		return
	}
	if terms == nil {
		terms = []types.Term{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"terms": terms})
}

type notesRequest struct {
	UserNotes string `json:"user_notes"`
}

func (s *Server) handleSetNotes(w http.ResponseWriter, r *http.Request) {
	termID, err := strconv.ParseInt(r.PathValue("termID"), 10, 64)
	if err != nil {
		writeError(w, types.ErrValidation)
		return
	}
	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", types.ErrValidation))
		return
	}
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		return sqlite.SetUserNotes(r.Context(), c, termID, req.UserNotes)
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"term_id": termID})
}

type listedTermRequest struct {
	TermText string `json:"term_text"`
}

func (s *Server) handleTermList(w http.ResponseWriter, r *http.Request, table string) {
	var listed []types.ListedTerm
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		var err error
		listed, err = sqlite.ListListedTerms(r.Context(), c, table)
		return err
	})
	if !ok {
		return
	}
	if listed == nil {
		listed = []types.ListedTerm{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"terms": listed})
}

func (s *Server) handleTermListAdd(w http.ResponseWriter, r *http.Request, table string) {
	var req listedTermRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TermText == "" {
		writeError(w, fmt.Errorf("%w: term_text is required", types.ErrValidation))
		return
	}
	var id int64
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		var err error
		id, err = sqlite.AddListedTerm(r.Context(), c, table, req.TermText, types.SourceManual)
		return err
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "term_text": req.TermText})
}

func (s *Server) handleTermListRemove(w http.ResponseWriter, r *http.Request, table string) {
	text, err := url.PathUnescape(r.PathValue("text"))
	if err != nil || text == "" {
		writeError(w, fmt.Errorf("%w: term text is required", types.ErrValidation))
		return
	}
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		return sqlite.RemoveListedTerm(r.Context(), c, table, text)
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": text})
}

func (s *Server) handleListExcluded(w http.ResponseWriter, r *http.Request) {
	s.handleTermList(w, r, sqlite.TableExcluded)
}

func (s *Server) handleAddExcluded(w http.ResponseWriter, r *http.Request) {
	s.handleTermListAdd(w, r, sqlite.TableExcluded)
}

func (s *Server) handleRemoveExcluded(w http.ResponseWriter, r *http.Request) {
	s.handleTermListRemove(w, r, sqlite.TableExcluded)
}

func (s *Server) handleListRequired(w http.ResponseWriter, r *http.Request) {
	s.handleTermList(w, r, sqlite.TableRequired)
}

func (s *Server) handleAddRequired(w http.ResponseWriter, r *http.Request) {
	s.handleTermListAdd(w, r, sqlite.TableRequired)
}

func (s *Server) handleRemoveRequired(w http.ResponseWriter, r *http.Request) {
	s.handleTermListRemove(w, r, sqlite.TableRequired)
}

// handleGlossary serves ?stage=provisional (default) or ?stage=refined.
func (s *Server) handleGlossary(w http.ResponseWriter, r *http.Request) {
	table := sqlite.TableProvisional
	switch r.URL.Query().Get("stage") {
	case "", "provisional":
	case "refined":
		table = sqlite.TableRefined
	default:
		writeError(w, fmt.Errorf("%w: stage must be provisional or refined", types.ErrValidation))
		return
	}
	var entries []types.GlossaryEntry
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		var err error
		entries, err = sqlite.ListGlossary(r.Context(), c, table)
		return err
	})
	if !ok {
		return
	}
	if entries == nil {
		entries = []types.GlossaryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	var issues []types.GlossaryIssue
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		var err error
		issues, err = sqlite.ListIssues(r.Context(), c)
		return err
	})
	if !ok {
		return
	}
	if issues == nil {
		issues = []types.GlossaryIssue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"issues": issues})
}

func (s *Server) handleListSynonyms(w http.ResponseWriter, r *http.Request) {
	var groups []types.SynonymGroup
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		var err error
		groups, err = sqlite.ListSynonymGroups(r.Context(), c)
		return err
	})
	if !ok {
		return
	}
	if groups == nil {
		groups = []types.SynonymGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) handleCreateSynonyms(w http.ResponseWriter, r *http.Request) {
	var group types.SynonymGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		writeError(w, fmt.Errorf("%w: invalid request body", types.ErrValidation))
		return
	}
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		id, err := sqlite.CreateSynonymGroup(r.Context(), c, &group)
		group.ID = id
		return err
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleDeleteSynonyms(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(r.PathValue("groupID"), 10, 64)
	if err != nil {
		writeError(w, types.ErrValidation)
		return
	}
	ok := s.withProjectConn(w, r, func(c *sqlite.Conn) error {
		return sqlite.DeleteSynonymGroup(r.Context(), c, groupID)
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": groupID})
}
