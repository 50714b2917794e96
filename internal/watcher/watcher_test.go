package watcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genglossary/genglossary/internal/logbus"
	"github.com/genglossary/genglossary/internal/pipeline"
	"github.com/genglossary/genglossary/internal/runner"
	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

type stubLLM struct{}

func (stubLLM) Generate(ctx context.Context, prompt string) (string, error) { return "", nil }

func (stubLLM) GenerateStructured(ctx context.Context, prompt string, schema json.RawMessage, out any) error {
	return json.Unmarshal([]byte(`{"classifications": []}`), out)
}

func (stubLLM) Available(ctx context.Context) bool { return true }

func TestWatcherDebouncesAndSchedulesExtract(t *testing.T) {
	root := t.TempDir()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "project.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mgr := runner.New(db, logbus.New(), pipeline.New(stubLLM{}), root, zerolog.Nop())
	t.Cleanup(mgr.Wait)

	var stale atomic.Int32
	w := New(root, mgr, true, func() { stale.Add(1) }, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to install its watches, then simulate an
	// editor save burst. The burst must collapse into one trigger.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "intro.md"), []byte("RunManager appears"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("more text"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skipped.go"), []byte("package x"), 0o644))

	require.Eventually(t, func() bool {
		return stale.Load() == 1
	}, 10*time.Second, 100*time.Millisecond, "debounced burst marks the project stale once")

	// The auto-extract run was recorded with the watcher as its trigger.
	require.Eventually(t, func() bool {
		var run *types.Run
		err := db.WithConn(context.Background(), func(c *sqlite.Conn) error {
			var err error
			run, err = sqlite.GetCurrentOrLatest(context.Background(), c)
			return err
		})
		return err == nil && run.TriggeredBy == "watcher" && run.Scope == types.ScopeExtract
	}, 10*time.Second, 100*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
