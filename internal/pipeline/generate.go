package pipeline

import (
	"context"
	"encoding/json"

	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

var defineSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "definition": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["definition", "confidence"]
}`)

type defineResult struct {
	Definition string  `json:"definition"`
	Confidence float64 `json:"confidence"`
}

// generateStage computes one definition per active term and replaces the
// provisional glossary. Individual term failures log a warning and the stage
// continues; only a full-stage error fails the run.
func (e *Executor) generateStage(ctx context.Context, c *sqlite.Conn, rc *RunContext, docRoot string) error {
	terms, err := sqlite.ListAllTerms(ctx, c)
	if err != nil {
		return err
	}
	if len(terms) == 0 {
		rc.Info("no active terms, nothing to generate")
		return c.Tx(ctx, func(tc *sqlite.Conn) error {
			return sqlite.ReplaceGlossary(ctx, tc, sqlite.TableProvisional, nil)
		})
	}

	docs, err := LoadDocuments(ctx, c, docRoot)
	if err != nil {
		return err
	}

	entries := make([]types.GlossaryEntry, 0, len(terms))
	for i, term := range terms {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		rc.Progress("generate", i+1, len(terms), term.TermText)

		occ := findOccurrences(docs, term.TermText)
		contexts := make([]string, len(occ))
		for j, o := range occ {
			contexts[j] = o.Context
		}

		var result defineResult
		err := e.llm.GenerateStructured(ctx, definePrompt(term.TermText, term.UserNotes, contexts), defineSchema, &result)
		if err != nil {
			if err = asCancelled(err); types.IsCancelled(err) {
				return err
			}
			rc.Warning("definition for %q failed: %v", term.TermText, err)
			continue
		}
		entries = append(entries, types.GlossaryEntry{
			TermName:    term.TermText,
			Definition:  result.Definition,
			Confidence:  clampConfidence(result.Confidence),
			Occurrences: occ,
		})
	}

	err = c.Tx(ctx, func(tc *sqlite.Conn) error {
		return sqlite.ReplaceGlossary(ctx, tc, sqlite.TableProvisional, entries)
	})
	if err != nil {
		return err
	}
	rc.Info("generated %d of %d definitions", len(entries), len(terms))
	return nil
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
