package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

// maxDocumentSize caps one source file. Oversized files are skipped rather
// than failing the run.
const maxDocumentSize = 5 << 20

var allowedExtensions = map[string]bool{
	".txt": true,
	".md":  true,
}

// deniedName rejects credential-like file names before content is ever read.
func deniedName(name string) bool {
	lower := strings.ToLower(name)
	switch {
	case lower == ".env" || strings.HasPrefix(lower, ".env."):
		return true
	case strings.HasSuffix(lower, ".key") || strings.HasSuffix(lower, ".pem"):
		return true
	case strings.HasPrefix(lower, "credentials"):
		return true
	case strings.HasPrefix(lower, ".git"):
		return true
	}
	return false
}

// EligibleDocument reports whether a file name would be picked up by the
// doc_root loader. Shared with the doc_root watcher.
func EligibleDocument(name string) bool {
	base := filepath.Base(name)
	return !deniedName(base) && allowedExtensions[strings.ToLower(filepath.Ext(base))]
}

// LoadDocuments returns the run's input set, DB-first: stored documents win
// when present; otherwise eligible files under docRoot are read, persisted,
// and returned. Both empty is an explicit error.
func LoadDocuments(ctx context.Context, c *sqlite.Conn, docRoot string) ([]types.Document, error) {
	docs, err := sqlite.ListDocuments(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 {
		return docs, nil
	}

	if docRoot == "" {
		return nil, fmt.Errorf("%w: no documents stored and no doc_root configured", types.ErrValidation)
	}
	root, err := filepath.Abs(docRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid doc_root %q: %v", types.ErrValidation, docRoot, err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: doc_root %q is not a directory", types.ErrValidation, docRoot)
	}

	loaded, err := readDocRoot(root)
	if err != nil {
		return nil, err
	}
	if len(loaded) == 0 {
		return nil, fmt.Errorf("%w: no documents stored and no eligible files under %q", types.ErrValidation, docRoot)
	}

	err = c.Tx(ctx, func(tc *sqlite.Conn) error {
		return sqlite.InsertDocumentsBatch(ctx, tc, loaded)
	})
	if err != nil {
		return nil, err
	}
	return sqlite.ListDocuments(ctx, c)
}

func readDocRoot(root string) ([]types.Document, error) {
	var docs []types.Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if deniedName(name) || !allowedExtensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxDocumentSize {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPosix := filepath.ToSlash(rel)
		// Symlinks pointing outside the root resolve to a path that fails
		// this containment check.
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(resolved, root+string(filepath.Separator)) && resolved != root {
			return nil
		}
		if err := sqlite.ValidateDocumentPath(relPosix); err != nil {
			return err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, types.Document{
			FileName:    relPosix,
			Content:     string(content),
			ContentHash: types.HashContent(string(content)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load documents from %q: %w", root, err)
	}
	return docs, nil
}
