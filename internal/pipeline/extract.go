package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

const categoryCommonNoun = "COMMON_NOUN"

var classifySchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "classifications": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "term": {"type": "string"},
          "category": {"type": "string", "enum": ["DOMAIN_TERM", "TECHNICAL_TERM", "PROPER_NOUN", "COMMON_NOUN"]}
        },
        "required": ["term", "category"]
      }
    }
  },
  "required": ["classifications"]
}`)

type classifyResult struct {
	Classifications []struct {
		Term     string `json:"term"`
		Category string `json:"category"`
	} `json:"classifications"`
}

// extractStage scans documents for candidate terms, classifies them in
// batched LLM calls, and replaces terms_extracted. User notes survive the
// reset through an explicit backup/restore keyed on term text.
func (e *Executor) extractStage(ctx context.Context, c *sqlite.Conn, rc *RunContext, docRoot string) error {
	docs, err := LoadDocuments(ctx, c, docRoot)
	if err != nil {
		return err
	}
	rc.Info("loaded %d documents", len(docs))

	candidates := scanCandidates(docs)
	rc.Info("found %d candidate terms", len(candidates))
	if len(candidates) == 0 {
		return nil
	}

	categories := make(map[string]string)
	total := (len(candidates) + e.batchSize - 1) / e.batchSize
	for b := 0; b*e.batchSize < len(candidates); b++ {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		lo := b * e.batchSize
		hi := min(lo+e.batchSize, len(candidates))
		batch := candidates[lo:hi]

		names := make([]string, len(batch))
		for i, cand := range batch {
			names[i] = cand.Text
		}
		var result classifyResult
		if err := e.llm.GenerateStructured(ctx, classifyPrompt(names), classifySchema, &result); err != nil {
			if err = asCancelled(err); types.IsCancelled(err) {
				return err
			}
			rc.Warning("classification batch %d/%d failed, keeping terms unclassified: %v", b+1, total, err)
		}
		for _, cl := range result.Classifications {
			categories[normalizeTermKey(cl.Term)] = cl.Category
		}
		rc.Progress("extract", hi, len(candidates), "")
	}

	terms := make([]types.Term, 0, len(candidates))
	var autoExcluded []string
	seen := make(map[string]bool)
	for _, cand := range candidates {
		key := normalizeTermKey(cand.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		category := categories[key]
		terms = append(terms, types.Term{TermText: cand.Text, Category: category})
		if category == categoryCommonNoun {
			autoExcluded = append(autoExcluded, cand.Text)
		}
	}

	err = c.Tx(ctx, func(tc *sqlite.Conn) error {
		backup, err := sqlite.BackupUserNotes(ctx, tc)
		if err != nil {
			return err
		}
		if err := sqlite.DeleteAllTerms(ctx, tc); err != nil {
			return err
		}
		if err := sqlite.InsertTermsBatch(ctx, tc, terms); err != nil {
			return err
		}
		if len(autoExcluded) > 0 {
			if err := sqlite.AddListedTermsBatch(ctx, tc, sqlite.TableExcluded, autoExcluded, types.SourceAuto); err != nil {
				return err
			}
		}
		return sqlite.RestoreUserNotes(ctx, tc, backup)
	})
	if err != nil {
		return err
	}

	rc.Info("extracted %d terms (%d auto-excluded as common nouns)", len(terms), len(autoExcluded))
	return nil
}

func normalizeTermKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
