package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Tx executes fn inside a transaction on this connection.
//
// When no transaction is active it behaves as a top-level transaction:
// BEGIN, then COMMIT on success or ROLLBACK on error or panic. When a
// transaction is already active it opens a uniquely-named savepoint instead;
// normal exit issues RELEASE, exceptional exit issues ROLLBACK TO followed by
// RELEASE. Nesting therefore lets an inner failure roll back inner work while
// the outer transaction continues.
func (c *Conn) Tx(ctx context.Context, fn func(*Conn) error) error {
	if c.txDepth == 0 {
		return c.topLevelTx(ctx, "BEGIN", fn)
	}
	return c.savepointTx(ctx, fn)
}

// ImmediateTx executes fn inside a BEGIN IMMEDIATE transaction, acquiring the
// database-level write lock up front. This is the primitive for cross-process
// check-then-act atomicity (the run manager's start path). It does not
// support nesting: calling it with any transaction active is an error.
func (c *Conn) ImmediateTx(ctx context.Context, fn func(*Conn) error) error {
	if c.txDepth > 0 {
		return fmt.Errorf("immediate transaction cannot be nested (depth %d)", c.txDepth)
	}
	return c.topLevelTx(ctx, "BEGIN IMMEDIATE", fn)
}

func (c *Conn) topLevelTx(ctx context.Context, begin string, fn func(*Conn) error) error {
	if _, err := c.sc.ExecContext(ctx, begin); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	c.txDepth = 1

	committed := false
	defer func() {
		c.txDepth = 0
		if !committed {
			// Background context so rollback completes even if ctx is done.
			_, _ = c.sc.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(c); err != nil {
		return err // rollback happens in defer
	}

	if _, err := c.sc.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (c *Conn) savepointTx(ctx context.Context, fn func(*Conn) error) error {
	name := savepointName()
	if _, err := c.sc.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}
	c.txDepth++

	released := false
	defer func() {
		c.txDepth--
		if !released {
			// Roll back the savepoint's work, then release it so the outer
			// transaction's savepoint stack stays balanced.
			_, _ = c.sc.ExecContext(context.Background(), "ROLLBACK TO "+name)
			_, _ = c.sc.ExecContext(context.Background(), "RELEASE "+name)
		}
	}()

	if err := fn(c); err != nil {
		return err
	}

	if _, err := c.sc.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	released = true
	return nil
}

// savepointName returns a savepoint identifier with a random 8-character
// suffix, unique within the connection's savepoint stack.
func savepointName() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return "sp_" + suffix
}
