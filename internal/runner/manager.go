// Package runner owns background pipeline execution: the single-active-run
// gate, per-run cancellation signals, worker lifecycle, and terminal status
// finalization.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/genglossary/genglossary/internal/logbus"
	"github.com/genglossary/genglossary/internal/pipeline"
	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

// Manager schedules one background pipeline run at a time for one project.
// Lock order, never violated: start-lock → DB (IMMEDIATE) → signals map.
type Manager struct {
	db      *sqlite.DB
	bus     *logbus.Bus
	exec    *pipeline.Executor
	docRoot string
	log     zerolog.Logger

	// startMu serializes the check-then-insert on the runs table with the
	// registration of the new run's cancel signal, so a cancel landing
	// between the two cannot be dropped.
	startMu sync.Mutex

	sigMu   sync.Mutex
	signals map[int64]context.CancelFunc

	// onTerminal, when set, observes every terminal transition the manager
	// performs. Used to mirror run outcomes into the project registry.
	onTerminal func(runID int64, status types.RunStatus)

	wg sync.WaitGroup
}

// Option adjusts manager construction.
type Option func(*Manager)

// WithTerminalHook registers a callback invoked after each terminal status
// write. It runs on the worker goroutine and must not block.
func WithTerminalHook(fn func(runID int64, status types.RunStatus)) Option {
	return func(m *Manager) { m.onTerminal = fn }
}

// New builds a manager for one project database.
func New(db *sqlite.DB, bus *logbus.Bus, exec *pipeline.Executor, docRoot string, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		db:      db,
		bus:     bus,
		exec:    exec,
		docRoot: docRoot,
		log:     logger,
		signals: make(map[int64]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bus exposes the project's log bus for SSE subscribers.
func (m *Manager) Bus() *logbus.Bus { return m.bus }

// StartRun inserts a pending run and spawns its worker. Returns
// types.ErrAlreadyRunning when the project already has an active run.
func (m *Manager) StartRun(ctx context.Context, scope types.RunScope, triggeredBy string) (*types.Run, error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	var run *types.Run
	err = conn.ImmediateTx(ctx, func(tc *sqlite.Conn) error {
		active, err := sqlite.GetActiveRun(ctx, tc)
		if err == nil {
			m.log.Debug().Int64("active_run", active.ID).Msg("run start rejected")
			return types.ErrAlreadyRunning
		}
		if !sqlite.IsNotFound(err) {
			return err
		}
		run, err = sqlite.CreateRun(ctx, tc, scope, triggeredBy)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Register the cancel signal under the start-lock; the worker's context
	// outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.Background())
	m.sigMu.Lock()
	m.signals[run.ID] = cancel
	m.sigMu.Unlock()

	m.wg.Add(1)
	go m.executeRun(runCtx, run.ID, scope)

	m.log.Info().Int64("run_id", run.ID).Str("scope", string(scope)).Str("triggered_by", triggeredBy).Msg("run started")
	return run, nil
}

// Cancel fires the run's cancel signal and marks the row cancelled if it is
// still active. Cancelling a terminal or unknown run is a success no-op.
func (m *Manager) Cancel(ctx context.Context, runID int64) error {
	m.sigMu.Lock()
	if cancel, ok := m.signals[runID]; ok {
		cancel()
	}
	m.sigMu.Unlock()

	return m.db.WithConn(ctx, func(c *sqlite.Conn) error {
		n, err := sqlite.CancelRun(ctx, c, runID)
		if err != nil {
			return err
		}
		if n == 0 {
			m.log.Info().Int64("run_id", runID).Msg("cancel was a no-op, run already terminal or unknown")
		} else if m.onTerminal != nil {
			m.onTerminal(runID, types.RunCancelled)
		}
		return nil
	})
}

// Wait blocks until all spawned workers have finished cleanup.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) unregister(runID int64) {
	m.sigMu.Lock()
	if cancel, ok := m.signals[runID]; ok {
		cancel()
		delete(m.signals, runID)
	}
	m.sigMu.Unlock()
}

// publish mirrors executor events to the bus and the process log.
func (m *Manager) publish(e logbus.Event) {
	m.bus.Publish(e)
	m.log.Debug().Int64("run_id", e.RunID).Str("level", string(e.Level)).Msg(e.Message)
}

// executeRun is the worker. Pipeline execution and status finalization are
// isolated from each other so a DB write failure is never misreported as a
// pipeline failure, and vice versa.
func (m *Manager) executeRun(ctx context.Context, runID int64, scope types.RunScope) {
	defer m.wg.Done()

	conn, connErr := m.db.Conn(context.Background())

	var execErr error
	if connErr != nil {
		execErr = connErr
	} else {
		execErr = m.runPipeline(ctx, conn, runID, scope)
	}

	m.finalize(conn, runID, execErr)

	m.unregister(runID)
	m.bus.Complete(runID)
	if conn != nil {
		_ = conn.Close()
	}
}

func (m *Manager) runPipeline(ctx context.Context, conn *sqlite.Conn, runID int64, scope types.RunScope) error {
	n, err := sqlite.MarkRunning(context.Background(), conn, runID, time.Now().UTC())
	if err != nil {
		return err
	}
	if n == 0 {
		// Cancelled while still pending.
		return types.ErrCancelled
	}

	rc := &pipeline.RunContext{RunID: runID, Log: m.publish}
	return m.exec.Execute(ctx, conn, rc, scope, m.docRoot)
}

// finalize applies the three ordered terminal rules. Status writes use a
// background context: the run context is typically already cancelled here.
func (m *Manager) finalize(conn *sqlite.Conn, runID int64, execErr error) {
	ctx := context.Background()
	switch {
	case types.IsCancelled(execErr):
		if conn == nil {
			return
		}
		n, err := sqlite.UpdateIfActive(ctx, conn, runID, types.RunCancelled, "")
		if err != nil {
			m.log.Error().Err(err).Int64("run_id", runID).Msg("failed to write cancelled status")
			return
		}
		if n > 0 && m.onTerminal != nil {
			m.onTerminal(runID, types.RunCancelled)
		}
		m.log.Info().Int64("run_id", runID).Msg("run cancelled")

	case execErr != nil:
		m.publish(logbus.Event{RunID: runID, Level: logbus.LevelError, Message: execErr.Error()})
		m.markFailed(ctx, conn, runID, execErr.Error())

	default:
		n, err := sqlite.CompleteIfNotCancelled(ctx, conn, runID)
		if err != nil {
			m.log.Error().Err(err).Int64("run_id", runID).Msg("failed to write completed status")
			return
		}
		if n == 0 {
			// A cancel landed after the pipeline returned; the row already
			// says cancelled and the artifacts are kept.
			m.log.Info().Int64("run_id", runID).Msg("completion was a no-op, run already terminal")
			return
		}
		if m.onTerminal != nil {
			m.onTerminal(runID, types.RunCompleted)
		}
		m.log.Info().Int64("run_id", runID).Msg("run completed")
	}
}

// markFailed tolerates the worker connection being broken: it retries on a
// fresh connection, and as a last resort broadcasts a warning so observers
// know the stored status may be stale.
func (m *Manager) markFailed(ctx context.Context, conn *sqlite.Conn, runID int64, msg string) {
	write := func(c *sqlite.Conn) (int64, error) {
		return sqlite.FailIfNotTerminal(ctx, c, runID, msg)
	}

	var n int64
	var err error
	wrote := false
	if conn != nil {
		n, err = write(conn)
		wrote = err == nil
	}
	if !wrote {
		fresh, openErr := m.db.Conn(ctx)
		if openErr == nil {
			n, err = write(fresh)
			_ = fresh.Close()
		} else if err == nil {
			err = openErr
		}
	}
	if err != nil {
		m.log.Error().Err(err).Int64("run_id", runID).Msg("failed to write failed status")
		m.publish(logbus.Event{
			RunID:   runID,
			Level:   logbus.LevelWarning,
			Message: "could not persist failed status, the stored run status may be stale",
		})
		return
	}
	if n == 0 {
		m.log.Info().Int64("run_id", runID).Msg("failure write was a no-op, run already terminal")
		return
	}
	if m.onTerminal != nil {
		m.onTerminal(runID, types.RunFailed)
	}
	m.log.Warn().Int64("run_id", runID).Str("error", msg).Msg("run failed")
}
