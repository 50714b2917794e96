package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/genglossary/genglossary/internal/types"
)

// CreateRun inserts a new pending run row. Callers (the run manager) invoke
// this inside an IMMEDIATE transaction after checking the single-active-run
// invariant.
func CreateRun(ctx context.Context, c *Conn, scope types.RunScope, triggeredBy string) (*types.Run, error) {
	if !scope.IsValid() {
		return nil, fmt.Errorf("%w: unknown run scope %q", types.ErrValidation, scope)
	}
	now := NowUTC()
	res, err := c.ExecContext(ctx, `
		INSERT INTO runs (scope, status, triggered_by, created_at) VALUES (?, ?, ?, ?)
	`, string(scope), string(types.RunPending), triggeredBy, now)
	if err != nil {
		return nil, wrapDBError("create run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, wrapDBError("create run", err)
	}
	return GetRun(ctx, c, id)
}

const runColumns = `id, scope, status, started_at, finished_at, triggered_by,
	error_message, progress_current, progress_total, current_step, created_at`

func scanRun(row *sql.Row) (*types.Run, error) {
	var r types.Run
	var startedAt, finishedAt, errMsg *string
	var createdAt string
	err := row.Scan(&r.ID, &r.Scope, &r.Status, &startedAt, &finishedAt,
		&r.TriggeredBy, &errMsg, &r.ProgressCurrent, &r.ProgressTotal,
		&r.CurrentStep, &createdAt)
	if err != nil {
		return nil, err
	}
	if r.StartedAt, err = parseNullableTime(startedAt); err != nil {
		return nil, err
	}
	if r.FinishedAt, err = parseNullableTime(finishedAt); err != nil {
		return nil, err
	}
	if errMsg != nil {
		r.ErrorMessage = *errMsg
	}
	if r.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRun fetches one run by id.
func GetRun(ctx context.Context, c *Conn, id int64) (*types.Run, error) {
	r, err := scanRun(c.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		return nil, wrapDBError("get run", err)
	}
	return r, nil
}

// GetActiveRun returns the run holding the single-active-run slot, or
// ErrNotFound when no run is pending or running.
func GetActiveRun(ctx context.Context, c *Conn) (*types.Run, error) {
	r, err := scanRun(c.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs WHERE status IN ('pending', 'running') LIMIT 1
	`))
	if err != nil {
		return nil, wrapDBError("get active run", err)
	}
	return r, nil
}

// GetCurrentOrLatest returns the active run if any, else the most recent run
// regardless of status. Supports the "current status" endpoint, which must
// still show the last completion after a run finishes.
func GetCurrentOrLatest(ctx context.Context, c *Conn) (*types.Run, error) {
	r, err := GetActiveRun(ctx, c)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	r, err = scanRun(c.QueryRowContext(ctx, `
		SELECT ` + runColumns + ` FROM runs ORDER BY id DESC LIMIT 1
	`))
	if err != nil {
		return nil, wrapDBError("get latest run", err)
	}
	return r, nil
}

// ListRuns returns runs newest first, capped at limit (0 means all).
func ListRuns(ctx context.Context, c *Conn, limit int) ([]types.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := c.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list runs", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []types.Run
	for rows.Next() {
		var r types.Run
		var startedAt, finishedAt, errMsg *string
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Scope, &r.Status, &startedAt, &finishedAt,
			&r.TriggeredBy, &errMsg, &r.ProgressCurrent, &r.ProgressTotal,
			&r.CurrentStep, &createdAt); err != nil {
			return nil, wrapDBError("scan run", err)
		}
		if r.StartedAt, err = parseNullableTime(startedAt); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseNullableTime(finishedAt); err != nil {
			return nil, err
		}
		if errMsg != nil {
			r.ErrorMessage = *errMsg
		}
		if r.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, wrapDBError("list runs", rows.Err())
}

// MarkRunning transitions pending → running, recording started_at. Returns
// the number of rows affected: 0 means the run was already past pending
// (a cancel can land first) and the caller must not proceed.
func MarkRunning(ctx context.Context, c *Conn, id int64, startedAt time.Time) (int64, error) {
	ts, err := FormatTime(startedAt)
	if err != nil {
		return 0, err
	}
	res, err := c.ExecContext(ctx, `
		UPDATE runs SET status = ?, started_at = ? WHERE id = ? AND status = ?
	`, string(types.RunRunning), ts, id, string(types.RunPending))
	if err != nil {
		return 0, wrapDBError("mark run running", err)
	}
	n, err := res.RowsAffected()
	return n, wrapDBError("mark run running", err)
}

// UpdateStatus is the unrestricted setter: any pre-state, any target.
// Transitioning to a non-terminal state clears error_message so a requeue
// does not carry a stale error. finished_at is set only when provided.
func UpdateStatus(ctx context.Context, c *Conn, id int64, status types.RunStatus, errorMessage string, finishedAt *time.Time) error {
	var finished any
	if finishedAt != nil {
		ts, err := FormatTime(*finishedAt)
		if err != nil {
			return err
		}
		finished = ts
	}
	var errMsg any
	if status.IsTerminal() {
		if errorMessage != "" {
			errMsg = errorMessage
		}
	}
	res, err := c.ExecContext(ctx, `
		UPDATE runs SET status = ?, error_message = ?, finished_at = COALESCE(?, finished_at)
		WHERE id = ?
	`, string(status), errMsg, finished, id)
	if err != nil {
		return wrapDBError("update run status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("update run status", err)
	}
	if n == 0 {
		return fmt.Errorf("update run %d: %w", id, ErrNotFound)
	}
	return nil
}

// updateGuarded performs a guarded terminal transition: the WHERE clause
// encodes the allowed pre-states so the check and the write are one atomic
// statement. Returns rows affected; 0 means the run was already terminal or
// does not exist, which callers surface as an informational log, not an error.
func updateGuarded(ctx context.Context, c *Conn, id int64, target types.RunStatus, errorMessage string, preStates []types.RunStatus) (int64, error) {
	if !target.IsTerminal() {
		return 0, fmt.Errorf("%w: guarded transition target %q is not terminal", types.ErrValidation, target)
	}
	query := `UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE id = ? AND status IN (`
	args := []any{string(target), nullableString(errorMessage), NowUTC(), id}
	for i, s := range preStates {
		if i > 0 {
			query += ", "
		}
		query += "?"
		args = append(args, string(s))
	}
	query += ")"

	res, err := c.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapDBError("guarded run update", err)
	}
	n, err := res.RowsAffected()
	return n, wrapDBError("guarded run update", err)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UpdateIfActive transitions pending|running → terminal.
func UpdateIfActive(ctx context.Context, c *Conn, id int64, target types.RunStatus, errorMessage string) (int64, error) {
	return updateGuarded(ctx, c, id, target, errorMessage, []types.RunStatus{types.RunPending, types.RunRunning})
}

// UpdateIfRunning transitions running → terminal. pending → completed is
// forbidden by construction: completion requires started_at to have been set.
func UpdateIfRunning(ctx context.Context, c *Conn, id int64, target types.RunStatus, errorMessage string) (int64, error) {
	return updateGuarded(ctx, c, id, target, errorMessage, []types.RunStatus{types.RunRunning})
}

// CancelRun transitions pending|running → cancelled.
func CancelRun(ctx context.Context, c *Conn, id int64) (int64, error) {
	return UpdateIfActive(ctx, c, id, types.RunCancelled, "")
}

// CompleteIfNotCancelled transitions running → completed. When a cancel
// landed after the pipeline returned, the guard reports 0 rows and the
// cancelled status stands.
func CompleteIfNotCancelled(ctx context.Context, c *Conn, id int64) (int64, error) {
	return UpdateIfRunning(ctx, c, id, types.RunCompleted, "")
}

// FailIfNotTerminal transitions pending|running → failed, preserving a
// cancelled row if a late cancel won the race.
func FailIfNotTerminal(ctx context.Context, c *Conn, id int64, errorMessage string) (int64, error) {
	return UpdateIfActive(ctx, c, id, types.RunFailed, errorMessage)
}
