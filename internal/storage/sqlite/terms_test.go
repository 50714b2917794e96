package sqlite

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genglossary/genglossary/internal/types"
)

func TestListAllTermsUnion(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	// extracted: alpha, beta, gamma. excluded: beta (hidden), gamma (but
	// required, so visible). required-only: delta, shown with a negative id.
	require.NoError(t, InsertTermsBatch(ctx, c, []types.Term{
		{TermText: "alpha"}, {TermText: "beta"}, {TermText: "gamma"},
	}))
	_, err := AddListedTerm(ctx, c, TableExcluded, "beta", types.SourceManual)
	require.NoError(t, err)
	_, err = AddListedTerm(ctx, c, TableExcluded, "gamma", types.SourceAuto)
	require.NoError(t, err)
	_, err = AddListedTerm(ctx, c, TableRequired, "gamma", types.SourceManual)
	require.NoError(t, err)
	_, err = AddListedTerm(ctx, c, TableRequired, "delta", types.SourceManual)
	require.NoError(t, err)

	terms, err := ListAllTerms(ctx, c)
	require.NoError(t, err)

	texts := make([]string, len(terms))
	for i, term := range terms {
		texts[i] = term.TermText
	}
	assert.Equal(t, []string{"alpha", "delta", "gamma"}, texts)
	assert.True(t, sort.StringsAreSorted(texts))

	byText := make(map[string]types.Term)
	for _, term := range terms {
		byText[term.TermText] = term
	}
	assert.Positive(t, byText["alpha"].ID)
	assert.Positive(t, byText["gamma"].ID)
	assert.Negative(t, byText["delta"].ID, "required-only terms carry a negated synthetic id")
}

func TestUserNotesBackupRestore(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	require.NoError(t, InsertTermsBatch(ctx, c, []types.Term{
		{TermText: "alpha"}, {TermText: "beta"}, {TermText: "gamma"},
	}))
	terms, err := ListTerms(ctx, c)
	require.NoError(t, err)
	for _, term := range terms {
		if term.TermText != "gamma" {
			require.NoError(t, SetUserNotes(ctx, c, term.ID, "notes for "+term.TermText))
		}
	}

	backup, err := BackupUserNotes(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"alpha": "notes for alpha",
		"beta":  "notes for beta",
	}, backup, "empty notes are excluded from the backup")

	// Destructive re-extraction: beta disappears, delta appears.
	require.NoError(t, DeleteAllTerms(ctx, c))
	require.NoError(t, InsertTermsBatch(ctx, c, []types.Term{
		{TermText: "alpha"}, {TermText: "delta"},
	}))
	require.NoError(t, RestoreUserNotes(ctx, c, backup))

	restored, err := ListTerms(ctx, c)
	require.NoError(t, err)
	notes := make(map[string]string)
	for _, term := range restored {
		notes[term.TermText] = term.UserNotes
	}
	assert.Equal(t, "notes for alpha", notes["alpha"])
	assert.Empty(t, notes["delta"])
}

func TestSetUserNotesNotFound(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	err := SetUserNotes(ctx, c, 999, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTermListWhitelist(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	_, err := AddListedTerm(ctx, c, "runs", "sneaky", types.SourceManual)
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = ListListedTerms(ctx, c, "terms_extracted; DROP TABLE runs")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestSynonymGroupInvariants(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	_, err := CreateSynonymGroup(ctx, c, &types.SynonymGroup{
		PrimaryTerm: "api",
		Members:     []string{"rest api", "endpoint"},
	})
	assert.ErrorIs(t, err, types.ErrValidation, "primary term must be a member")

	id, err := CreateSynonymGroup(ctx, c, &types.SynonymGroup{
		PrimaryTerm: "api",
		Members:     []string{"api", "rest api"},
	})
	require.NoError(t, err)

	// A term belongs to at most one group.
	_, err = CreateSynonymGroup(ctx, c, &types.SynonymGroup{
		PrimaryTerm: "rest api",
		Members:     []string{"rest api"},
	})
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, DeleteSynonymGroup(ctx, c, id))
	groups, err := ListSynonymGroups(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
