package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genglossary/genglossary/internal/types"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testConn(t *testing.T, db *DB) *Conn {
	t.Helper()
	c, err := db.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func termTexts(t *testing.T, c *Conn) []string {
	t.Helper()
	terms, err := ListTerms(context.Background(), c)
	require.NoError(t, err)
	texts := make([]string, len(terms))
	for i, term := range terms {
		texts[i] = term.TermText
	}
	return texts
}

func TestTxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	err := c.Tx(ctx, func(tc *Conn) error {
		_, err := InsertTerm(ctx, tc, &types.Term{TermText: "kept"})
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = c.Tx(ctx, func(tc *Conn) error {
		_, err := InsertTerm(ctx, tc, &types.Term{TermText: "discarded"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"kept"}, termTexts(t, c))
}

func TestNestedSavepointPartialRollback(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	inner := errors.New("inner failure")
	err := c.Tx(ctx, func(outer *Conn) error {
		if _, err := InsertTerm(ctx, outer, &types.Term{TermText: "outer"}); err != nil {
			return err
		}

		err := outer.Tx(ctx, func(nested *Conn) error {
			if _, err := InsertTerm(ctx, nested, &types.Term{TermText: "inner"}); err != nil {
				return err
			}
			return inner
		})
		require.ErrorIs(t, err, inner)

		_, err = InsertTerm(ctx, outer, &types.Term{TermText: "after"})
		return err
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"outer", "after"}, termTexts(t, c))
}

func TestImmediateTxRejectsNesting(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	err := c.Tx(ctx, func(tc *Conn) error {
		return tc.ImmediateTx(ctx, func(*Conn) error { return nil })
	})
	require.Error(t, err)
}

func TestImmediateTxCommits(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	err := c.ImmediateTx(ctx, func(tc *Conn) error {
		_, err := InsertTerm(ctx, tc, &types.Term{TermText: "immediate"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"immediate"}, termTexts(t, c))
}

func TestUniqueViolationSurfacesConflict(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	_, err := InsertTerm(ctx, c, &types.Term{TermText: "dup"})
	require.NoError(t, err)
	_, err = InsertTerm(ctx, c, &types.Term{TermText: "dup"})
	assert.ErrorIs(t, err, ErrConflict)
}
