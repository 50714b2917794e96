package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genglossary/genglossary/internal/types"
)

func TestRunLifecycleCompleted(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	run, err := CreateRun(ctx, c, types.ScopeFull, "test")
	require.NoError(t, err)
	assert.Equal(t, types.RunPending, run.Status)

	n, err := MarkRunning(ctx, c, run.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = CompleteIfNotCancelled(ctx, c, run.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := GetRun(ctx, c, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, got.Status)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.False(t, got.FinishedAt.Before(*got.StartedAt))
}

func TestPendingCannotComplete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	run, err := CreateRun(ctx, c, types.ScopeGenerate, "test")
	require.NoError(t, err)

	// completeIfNotCancelled requires the running pre-state.
	n, err := CompleteIfNotCancelled(ctx, c, run.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := GetRun(ctx, c, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunPending, got.Status)
}

func TestCancelGuards(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	run, err := CreateRun(ctx, c, types.ScopeExtract, "test")
	require.NoError(t, err)

	n, err := CancelRun(ctx, c, run.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// MarkRunning loses the race once the row is terminal.
	n, err = MarkRunning(ctx, c, run.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	// A second cancel is a no-op, not an error.
	n, err = CancelRun(ctx, c, run.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestLateCancelAfterCompletionIsNoOp(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	run, err := CreateRun(ctx, c, types.ScopeFull, "test")
	require.NoError(t, err)
	_, err = MarkRunning(ctx, c, run.ID, time.Now().UTC())
	require.NoError(t, err)
	_, err = CompleteIfNotCancelled(ctx, c, run.ID)
	require.NoError(t, err)

	n, err := CancelRun(ctx, c, run.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := GetRun(ctx, c, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, got.Status)
}

func TestFailIfNotTerminalDoesNotOverwriteCancelled(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	run, err := CreateRun(ctx, c, types.ScopeFull, "test")
	require.NoError(t, err)
	_, err = MarkRunning(ctx, c, run.ID, time.Now().UTC())
	require.NoError(t, err)
	_, err = CancelRun(ctx, c, run.ID)
	require.NoError(t, err)

	n, err := FailIfNotTerminal(ctx, c, run.ID, "late failure")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := GetRun(ctx, c, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCancelled, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestUpdateStatusClearsErrorOnRequeue(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	run, err := CreateRun(ctx, c, types.ScopeFull, "test")
	require.NoError(t, err)
	_, err = MarkRunning(ctx, c, run.ID, time.Now().UTC())
	require.NoError(t, err)

	_, err = FailIfNotTerminal(ctx, c, run.ID, "transient failure")
	require.NoError(t, err)
	got, err := GetRun(ctx, c, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "transient failure", got.ErrorMessage)

	// Requeueing to a non-terminal state must not carry a stale error.
	err = UpdateStatus(ctx, c, run.ID, types.RunPending, "", nil)
	require.NoError(t, err)
	got, err = GetRun(ctx, c, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunPending, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestGetActiveRunAndCurrentOrLatest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	_, err := GetActiveRun(ctx, c)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = GetCurrentOrLatest(ctx, c)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := CreateRun(ctx, c, types.ScopeFull, "test")
	require.NoError(t, err)

	active, err := GetActiveRun(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	_, err = CancelRun(ctx, c, first.ID)
	require.NoError(t, err)

	// No active run left; current falls back to the latest row.
	_, err = GetActiveRun(ctx, c)
	assert.ErrorIs(t, err, ErrNotFound)
	latest, err := GetCurrentOrLatest(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
	assert.Equal(t, types.RunCancelled, latest.Status)

	second, err := CreateRun(ctx, c, types.ScopeReview, "test")
	require.NoError(t, err)
	current, err := GetCurrentOrLatest(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
}

func TestCreateRunRejectsUnknownScope(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	_, err := CreateRun(ctx, c, types.RunScope("everything"), "test")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestFormatTimeRejectsZero(t *testing.T) {
	_, err := FormatTime(time.Time{})
	assert.ErrorIs(t, err, ErrInvalidTime)

	s, err := FormatTime(time.Date(2026, 3, 1, 12, 30, 45, 999999999, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:30:45Z", s)
}
