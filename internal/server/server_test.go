package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genglossary/genglossary/internal/config"
	"github.com/genglossary/genglossary/internal/registry"
	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

type testEnv struct {
	srv *Server
	ts  *httptest.Server
}

func newTestEnv(t *testing.T, llmBaseURL string) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Home:        t.TempDir(),
		LLMProvider: "ollama",
		LLMModel:    "test-model",
		LLMBaseURL:  llmBaseURL,
		LLMTimeout:  10 * time.Second,
		BatchSize:   10,
	}
	reg, err := registry.Open(cfg.RegistryPath())
	require.NoError(t, err)

	srv := New(cfg, reg, zerolog.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		_ = reg.Close()
	})
	return &testEnv{srv: srv, ts: ts}
}

// do issues a JSON request and decodes the response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) createProject(t *testing.T, name string) *types.Project {
	t.Helper()
	var p types.Project
	status := e.do(t, http.MethodPost, "/projects", map[string]string{"name": name}, &p)
	require.Equal(t, http.StatusCreated, status)
	return &p
}

// seedProjectDB writes fixtures straight into the project database file.
func seedProjectDB(t *testing.T, dbPath string, fn func(*sqlite.Conn) error) {
	t.Helper()
	db, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.WithConn(context.Background(), fn))
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	var out map[string]string
	status := env.do(t, http.MethodGet, "/healthz", nil, &out)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", out["status"])
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t, "")

	p := env.createProject(t, "docs")
	assert.Equal(t, types.ProjectCreated, p.Status)
	assert.NotEmpty(t, p.DBPath)

	var got types.Project
	status := env.do(t, http.MethodGet, fmt.Sprintf("/projects/%d", p.ID), nil, &got)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "docs", got.Name)

	var listed struct {
		Projects []types.Project `json:"projects"`
	}
	status = env.do(t, http.MethodGet, "/projects", nil, &listed)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, listed.Projects, 1)

	var updated types.Project
	status = env.do(t, http.MethodPatch, fmt.Sprintf("/projects/%d", p.ID),
		map[string]string{"name": "docs-v2", "llm_model": "llama3"}, &updated)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "docs-v2", updated.Name)
	assert.Equal(t, "llama3", updated.LLMModel)

	var clone types.Project
	status = env.do(t, http.MethodPost, fmt.Sprintf("/projects/%d/clone", p.ID),
		map[string]string{"name": "docs-copy"}, &clone)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "llama3", clone.LLMModel)
	assert.Equal(t, types.ProjectCreated, clone.Status)

	status = env.do(t, http.MethodDelete, fmt.Sprintf("/projects/%d", p.ID), nil, nil)
	assert.Equal(t, http.StatusOK, status)
	status = env.do(t, http.MethodGet, fmt.Sprintf("/projects/%d", p.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProjectCreateValidation(t *testing.T) {
	env := newTestEnv(t, "")
	env.createProject(t, "docs")

	status := env.do(t, http.MethodPost, "/projects", map[string]string{"name": "docs"}, nil)
	assert.Equal(t, http.StatusConflict, status)

	status = env.do(t, http.MethodPost, "/projects", map[string]string{"name": "bad name"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = env.do(t, http.MethodGet, "/projects/notanumber", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDocumentEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t, "docs")
	base := fmt.Sprintf("/projects/%d/documents", p.ID)

	var doc types.Document
	status := env.do(t, http.MethodPost, base,
		map[string]string{"file_name": "guide/intro.md", "content": "hello"}, &doc)
	assert.Equal(t, http.StatusCreated, status)
	assert.Positive(t, doc.ID)
	assert.Equal(t, types.HashContent("hello"), doc.ContentHash)

	status = env.do(t, http.MethodPost, base,
		map[string]string{"file_name": "../escape.md", "content": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var listed struct {
		Documents []types.Document `json:"documents"`
	}
	status = env.do(t, http.MethodGet, base, nil, &listed)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, listed.Documents, 1)

	status = env.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, doc.ID), nil, nil)
	assert.Equal(t, http.StatusOK, status)
	status = env.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", base, doc.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestTermListEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t, "docs")
	base := fmt.Sprintf("/projects/%d/terms", p.ID)

	status := env.do(t, http.MethodPost, base+"/required",
		map[string]string{"term_text": "kubernetes"}, nil)
	assert.Equal(t, http.StatusCreated, status)
	status = env.do(t, http.MethodPost, base+"/excluded",
		map[string]string{"term_text": "the"}, nil)
	assert.Equal(t, http.StatusCreated, status)
	status = env.do(t, http.MethodPost, base+"/excluded", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// The unified listing shows the required-only term with a synthetic id.
	var terms struct {
		Terms []types.Term `json:"terms"`
	}
	status = env.do(t, http.MethodGet, base, nil, &terms)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, terms.Terms, 1)
	assert.Equal(t, "kubernetes", terms.Terms[0].TermText)
	assert.Negative(t, terms.Terms[0].ID)

	var excluded struct {
		Terms []types.ListedTerm `json:"terms"`
	}
	status = env.do(t, http.MethodGet, base+"/excluded", nil, &excluded)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, excluded.Terms, 1)
	assert.Equal(t, types.SourceManual, excluded.Terms[0].Source)

	status = env.do(t, http.MethodDelete, base+"/excluded/the", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	status = env.do(t, http.MethodGet, base+"/excluded", nil, &excluded)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, excluded.Terms)
}

func TestGlossaryAndExportEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.createProject(t, "docs")

	status := env.do(t, http.MethodGet, fmt.Sprintf("/projects/%d/export", p.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, status, "empty glossary has nothing to export")

	seedProjectDB(t, p.DBPath, func(c *sqlite.Conn) error {
		return c.Tx(context.Background(), func(tc *sqlite.Conn) error {
			return sqlite.ReplaceGlossary(context.Background(), tc, sqlite.TableRefined, []types.GlossaryEntry{
				{TermName: "api", Definition: "a surface"},
			})
		})
	})

	var glossary struct {
		Entries []types.GlossaryEntry `json:"entries"`
	}
	status = env.do(t, http.MethodGet, fmt.Sprintf("/projects/%d/glossary?stage=refined", p.ID), nil, &glossary)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, glossary.Entries, 1)

	status = env.do(t, http.MethodGet, fmt.Sprintf("/projects/%d/glossary?stage=draft", p.ID), nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	resp, err := http.Get(env.ts.URL + fmt.Sprintf("/projects/%d/export", p.ID))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "## api")
}

func TestStartRunLLMUnavailable(t *testing.T) {
	// Nothing listens on this address; the availability probe must fail fast.
	env := newTestEnv(t, "http://127.0.0.1:1")
	p := env.createProject(t, "docs")

	status := env.do(t, http.MethodPost, fmt.Sprintf("/projects/%d/runs", p.ID),
		map[string]string{"scope": "generate"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	release := make(chan struct{})
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/generate":
			select {
			case <-r.Context().Done():
			case <-release:
				fmt.Fprint(w, `{"response": "{\"definition\": \"a thing\", \"confidence\": 0.9}", "done": true}`)
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer backend.Close()

	env := newTestEnv(t, backend.URL)
	p := env.createProject(t, "docs")
	seedProjectDB(t, p.DBPath, func(c *sqlite.Conn) error {
		if err := sqlite.InsertDocumentsBatch(context.Background(), c, []types.Document{
			{FileName: "a.md", Content: "alpha is the first letter"},
		}); err != nil {
			return err
		}
		return sqlite.InsertTermsBatch(context.Background(), c, []types.Term{{TermText: "alpha"}})
	})
	runsPath := fmt.Sprintf("/projects/%d/runs", p.ID)

	status := env.do(t, http.MethodPost, runsPath, map[string]string{"scope": "everything"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var run types.Run
	status = env.do(t, http.MethodPost, runsPath, map[string]string{"scope": "generate"}, &run)
	require.Equal(t, http.StatusCreated, status)

	// The single-active-run gate answers with a conflict.
	status = env.do(t, http.MethodPost, runsPath, map[string]string{"scope": "generate"}, nil)
	assert.Equal(t, http.StatusConflict, status)

	var current types.Run
	status = env.do(t, http.MethodGet, runsPath+"/current", nil, &current)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, run.ID, current.ID)

	status = env.do(t, http.MethodDelete, fmt.Sprintf("%s/%d", runsPath, run.ID), nil, nil)
	assert.Equal(t, http.StatusOK, status)

	require.Eventually(t, func() bool {
		var got types.Run
		if env.do(t, http.MethodGet, fmt.Sprintf("%s/%d", runsPath, run.ID), nil, &got) != http.StatusOK {
			return false
		}
		return got.Status == types.RunCancelled
	}, 10*time.Second, 50*time.Millisecond)

	// A log stream for a terminal run ends with an immediate complete event.
	resp, err := http.Get(env.ts.URL + fmt.Sprintf("%s/%d/logs", runsPath, run.ID))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event: complete")

	// The gate reopens; this run completes once the backend is released.
	var second types.Run
	status = env.do(t, http.MethodPost, runsPath, map[string]string{"scope": "generate"}, &second)
	require.Equal(t, http.StatusCreated, status)
	close(release)

	require.Eventually(t, func() bool {
		var got types.Run
		if env.do(t, http.MethodGet, fmt.Sprintf("%s/%d", runsPath, second.ID), nil, &got) != http.StatusOK {
			return false
		}
		return got.Status == types.RunCompleted
	}, 10*time.Second, 50*time.Millisecond)

	var listed struct {
		Runs []types.Run `json:"runs"`
	}
	status = env.do(t, http.MethodGet, runsPath, nil, &listed)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, listed.Runs, 2)

	// The project status mirrors the last terminal outcome.
	var proj types.Project
	status = env.do(t, http.MethodGet, fmt.Sprintf("/projects/%d", p.ID), nil, &proj)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, types.ProjectCompleted, proj.Status)
	assert.NotNil(t, proj.LastRunAt)
}
