package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses: 400 validation,
// 404 not found, 409 conflict or already-running, 503 LLM unavailable,
// 500 otherwise. The cancelled sentinel never reaches this function.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, sqlite.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sqlite.ErrConflict), errors.Is(err, types.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, types.ErrLLMUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
