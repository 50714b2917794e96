package runner

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genglossary/genglossary/internal/logbus"
	"github.com/genglossary/genglossary/internal/pipeline"
	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

// fakeLLM delegates structured generation to a per-test closure.
type fakeLLM struct {
	generate func(ctx context.Context, prompt string, out any) error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func (f *fakeLLM) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, out any) error {
	if f.generate == nil {
		return json.Unmarshal([]byte(`{"definition": "a thing", "confidence": 0.9}`), out)
	}
	return f.generate(ctx, prompt, out)
}

func (f *fakeLLM) Available(ctx context.Context) bool { return true }

// hookRecorder captures terminal transitions in order.
type hookRecorder struct {
	mu       sync.Mutex
	statuses []types.RunStatus
}

func (h *hookRecorder) record(runID int64, status types.RunStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, status)
}

func (h *hookRecorder) seen() []types.RunStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.RunStatus(nil), h.statuses...)
}

func newTestManager(t *testing.T, fake *fakeLLM, hook *hookRecorder) (*Manager, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "project.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var opts []Option
	if hook != nil {
		opts = append(opts, WithTerminalHook(hook.record))
	}
	mgr := New(db, logbus.New(), pipeline.New(fake), "", zerolog.Nop(), opts...)
	t.Cleanup(mgr.Wait)
	return mgr, db
}

func seedTermWithDocument(t *testing.T, db *sqlite.DB) {
	t.Helper()
	ctx := context.Background()
	err := db.WithConn(ctx, func(c *sqlite.Conn) error {
		if err := sqlite.InsertDocumentsBatch(ctx, c, []types.Document{
			{FileName: "a.md", Content: "alpha is the first letter"},
		}); err != nil {
			return err
		}
		return sqlite.InsertTermsBatch(ctx, c, []types.Term{{TermText: "alpha"}})
	})
	require.NoError(t, err)
}

func fetchRun(t *testing.T, db *sqlite.DB, id int64) *types.Run {
	t.Helper()
	var run *types.Run
	err := db.WithConn(context.Background(), func(c *sqlite.Conn) error {
		var err error
		run, err = sqlite.GetRun(context.Background(), c, id)
		return err
	})
	require.NoError(t, err)
	return run
}

func TestSingleActiveRunGate(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	fake := &fakeLLM{generate: func(ctx context.Context, prompt string, out any) error {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return json.Unmarshal([]byte(`{"definition": "a thing", "confidence": 0.9}`), out)
		}
	}}
	hook := &hookRecorder{}
	mgr, db := newTestManager(t, fake, hook)
	seedTermWithDocument(t, db)

	first, err := mgr.StartRun(ctx, types.ScopeGenerate, "test")
	require.NoError(t, err)
	<-started

	// The gate holds while the first run is active.
	_, err = mgr.StartRun(ctx, types.ScopeGenerate, "test")
	assert.ErrorIs(t, err, types.ErrAlreadyRunning)
	assert.Equal(t, types.RunRunning, fetchRun(t, db, first.ID).Status)

	require.NoError(t, mgr.Cancel(ctx, first.ID))
	mgr.Wait()
	assert.Equal(t, types.RunCancelled, fetchRun(t, db, first.ID).Status)

	// Cancellation reopens the gate.
	second, err := mgr.StartRun(ctx, types.ScopeGenerate, "test")
	require.NoError(t, err)
	close(release)
	mgr.Wait()
	assert.Equal(t, types.RunCompleted, fetchRun(t, db, second.ID).Status)

	assert.Equal(t, []types.RunStatus{types.RunCancelled, types.RunCompleted}, hook.seen())
}

func TestCompletedRunEmitsTerminalMarker(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	fake := &fakeLLM{generate: func(ctx context.Context, prompt string, out any) error {
		<-release
		return json.Unmarshal([]byte(`{"definition": "a thing", "confidence": 0.9}`), out)
	}}
	mgr, db := newTestManager(t, fake, nil)
	seedTermWithDocument(t, db)

	run, err := mgr.StartRun(ctx, types.ScopeGenerate, "test")
	require.NoError(t, err)

	events, stop := mgr.Bus().Subscribe(run.ID)
	defer stop()
	close(release)

	deadline := time.After(10 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Complete {
				mgr.Wait()
				assert.Equal(t, types.RunCompleted, fetchRun(t, db, run.ID).Status)
				return
			}
		case <-deadline:
			t.Fatal("no terminal marker on the log bus")
		}
	}
}

func TestFailedRunRecordsErrorMessage(t *testing.T) {
	ctx := context.Background()
	hook := &hookRecorder{}
	mgr, db := newTestManager(t, &fakeLLM{}, hook)

	// A term without documents and without a doc_root fails document loading.
	err := db.WithConn(ctx, func(c *sqlite.Conn) error {
		return sqlite.InsertTermsBatch(ctx, c, []types.Term{{TermText: "alpha"}})
	})
	require.NoError(t, err)

	run, err := mgr.StartRun(ctx, types.ScopeGenerate, "test")
	require.NoError(t, err)
	mgr.Wait()

	got := fetchRun(t, db, run.ID)
	assert.Equal(t, types.RunFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "no documents")
	assert.Equal(t, []types.RunStatus{types.RunFailed}, hook.seen())
}

func TestCancelAfterCompletionKeepsCompleted(t *testing.T) {
	ctx := context.Background()
	hook := &hookRecorder{}
	mgr, db := newTestManager(t, &fakeLLM{}, hook)
	seedTermWithDocument(t, db)

	run, err := mgr.StartRun(ctx, types.ScopeGenerate, "test")
	require.NoError(t, err)
	mgr.Wait()
	require.Equal(t, types.RunCompleted, fetchRun(t, db, run.ID).Status)

	// A cancel arriving after the terminal write is a success no-op.
	require.NoError(t, mgr.Cancel(ctx, run.ID))
	assert.Equal(t, types.RunCompleted, fetchRun(t, db, run.ID).Status)
	assert.Equal(t, []types.RunStatus{types.RunCompleted}, hook.seen())
}

func TestCancelUnknownRunIsANoOp(t *testing.T) {
	mgr, _ := newTestManager(t, &fakeLLM{}, nil)
	assert.NoError(t, mgr.Cancel(context.Background(), 12345))
}
