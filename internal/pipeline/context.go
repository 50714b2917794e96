package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/genglossary/genglossary/internal/logbus"
	"github.com/genglossary/genglossary/internal/types"
)

// LogFunc receives one structured event from the executor. The run manager
// wires it to the project's log bus.
type LogFunc func(logbus.Event)

// RunContext is the immutable per-run record threaded through every stage.
// The executor itself holds no per-run state.
type RunContext struct {
	RunID int64
	Log   LogFunc
}

func (rc *RunContext) emit(level logbus.Level, msg string) {
	if rc.Log == nil {
		return
	}
	rc.Log(logbus.Event{RunID: rc.RunID, Level: level, Message: msg})
}

func (rc *RunContext) Info(format string, args ...any) {
	rc.emit(logbus.LevelInfo, fmt.Sprintf(format, args...))
}

func (rc *RunContext) Warning(format string, args ...any) {
	rc.emit(logbus.LevelWarning, fmt.Sprintf(format, args...))
}

func (rc *RunContext) Error(format string, args ...any) {
	rc.emit(logbus.LevelError, fmt.Sprintf(format, args...))
}

// Progress emits an info event with the progress fields populated. Consumers
// compute percentages client-side; runs.progress_* columns are not written.
func (rc *RunContext) Progress(step string, current, total int, term string) {
	if rc.Log == nil {
		return
	}
	rc.Log(logbus.Event{
		RunID:           rc.RunID,
		Level:           logbus.LevelInfo,
		Message:         fmt.Sprintf("%s: %d/%d", step, current, total),
		Step:            step,
		ProgressCurrent: current,
		ProgressTotal:   total,
		CurrentTerm:     term,
	})
}

// checkCancelled maps a fired context to the cancellation sentinel. Stages
// call it at entry, before every LLM call, and per loop iteration.
func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return types.ErrCancelled
	}
	return nil
}

// asCancelled rewrites context errors escaping an LLM call into the
// cancellation sentinel so the finalizer never misfiles them as failures.
func asCancelled(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return types.ErrCancelled
	}
	return err
}
