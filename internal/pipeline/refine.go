package pipeline

import (
	"context"
	"encoding/json"

	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

var refineSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "definition": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["definition", "confidence"]
}`)

// refineStage rewrites definitions flagged by review and replaces the
// refined glossary. With no recorded issues the provisional glossary is
// copied verbatim. Terms whose rewrite fails keep their provisional
// definition after a warning.
func (e *Executor) refineStage(ctx context.Context, c *sqlite.Conn, rc *RunContext) error {
	provisional, err := sqlite.ListGlossary(ctx, c, sqlite.TableProvisional)
	if err != nil {
		return err
	}
	issues, err := sqlite.ListIssues(ctx, c)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		err = c.Tx(ctx, func(tc *sqlite.Conn) error {
			return sqlite.ReplaceGlossary(ctx, tc, sqlite.TableRefined, provisional)
		})
		if err != nil {
			return err
		}
		rc.Info("no issues recorded, copied %d entries to the refined glossary", len(provisional))
		return nil
	}

	byTerm := make(map[string][]string)
	var order []string
	for _, iss := range issues {
		if _, ok := byTerm[iss.TermName]; !ok {
			order = append(order, iss.TermName)
		}
		byTerm[iss.TermName] = append(byTerm[iss.TermName], string(iss.IssueType)+": "+iss.Description)
	}

	notes, err := sqlite.BackupUserNotes(ctx, c)
	if err != nil {
		return err
	}

	glossaryCtx := make([]glossaryLine, 0, len(provisional))
	entryByTerm := make(map[string]int, len(provisional))
	for i, entry := range provisional {
		glossaryCtx = append(glossaryCtx, glossaryLine{Term: entry.TermName, Definition: entry.Definition})
		entryByTerm[entry.TermName] = i
	}

	refined := make([]types.GlossaryEntry, len(provisional))
	copy(refined, provisional)

	for i, term := range order {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		rc.Progress("refine", i+1, len(order), term)

		idx, ok := entryByTerm[term]
		if !ok {
			rc.Warning("issue references unknown term %q, skipping", term)
			continue
		}

		var result defineResult
		prompt := refinePrompt(term, byTerm[term], provisional[idx].Definition, notes[term], glossaryCtx)
		err := e.llm.GenerateStructured(ctx, prompt, refineSchema, &result)
		if err != nil {
			if err = asCancelled(err); types.IsCancelled(err) {
				return err
			}
			rc.Warning("refinement for %q failed, keeping provisional definition: %v", term, err)
			continue
		}
		refined[idx].Definition = result.Definition
		refined[idx].Confidence = clampConfidence(result.Confidence)
	}

	err = c.Tx(ctx, func(tc *sqlite.Conn) error {
		return sqlite.ReplaceGlossary(ctx, tc, sqlite.TableRefined, refined)
	})
	if err != nil {
		return err
	}
	rc.Info("refined %d terms across %d entries", len(order), len(refined))
	return nil
}
