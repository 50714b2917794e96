package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genglossary/genglossary/internal/types"
)

func TestValidateDocumentPath(t *testing.T) {
	valid := []string{
		"intro.md",
		"chapter1/intro.md",
		"a/b/c/deep.txt",
	}
	for _, name := range valid {
		assert.NoError(t, ValidateDocumentPath(name), name)
	}

	invalid := []string{
		"",
		"../secret.md",
		"chapter1/../../secret.md",
		"/etc/passwd",
		`C:\docs\intro.md`,
		`chapter1\intro.md`,
		"./intro.md",
	}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateDocumentPath(name), types.ErrValidation, name)
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	doc := types.Document{
		FileName:    "chapter1/intro.md",
		Content:     "hi",
		ContentHash: types.HashContent("hi"),
	}
	id, err := InsertDocument(ctx, c, &doc)
	require.NoError(t, err)

	got, err := GetDocumentByName(ctx, c, "chapter1/intro.md")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "chapter1/intro.md", got.FileName)
	assert.Equal(t, "hi", got.Content)
	assert.Equal(t, types.HashContent("hi"), got.ContentHash)

	// file_name is unique.
	_, err = InsertDocument(ctx, c, &doc)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, DeleteDocument(ctx, c, id))
	assert.ErrorIs(t, DeleteDocument(ctx, c, id), ErrNotFound)
}

func TestInsertDocumentRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	c := testConn(t, db)

	_, err := InsertDocument(ctx, c, &types.Document{FileName: "../secret.md", Content: "x"})
	require.ErrorIs(t, err, types.ErrValidation)

	n, err := CountDocuments(ctx, c)
	require.NoError(t, err)
	assert.Zero(t, n, "no row is written for a rejected path")
}
