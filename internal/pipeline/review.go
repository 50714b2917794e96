package pipeline

import (
	"context"
	"encoding/json"

	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

var reviewSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "term_name": {"type": "string"},
          "issue_type": {"type": "string", "enum": ["unclear", "contradiction", "missing_relation", "unnecessary"]},
          "description": {"type": "string"},
          "should_exclude": {"type": "boolean"},
          "exclusion_reason": {"type": "string"}
        },
        "required": ["term_name", "issue_type", "description"]
      }
    }
  },
  "required": ["issues"]
}`)

type reviewResult struct {
	Issues []struct {
		TermName        string `json:"term_name"`
		IssueType       string `json:"issue_type"`
		Description     string `json:"description"`
		ShouldExclude   bool   `json:"should_exclude"`
		ExclusionReason string `json:"exclusion_reason"`
	} `json:"issues"`
}

// reviewStage checks the provisional glossary in batches and records the
// full issue set in one transaction. Cancellation mid-review leaves
// glossary_issues untouched. An empty issue set short-circuits: the
// provisional glossary is promoted verbatim to refined.
func (e *Executor) reviewStage(ctx context.Context, c *sqlite.Conn, rc *RunContext) error {
	entries, err := sqlite.ListGlossary(ctx, c, sqlite.TableProvisional)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		rc.Info("provisional glossary is empty, nothing to review")
		return nil
	}

	var issues []types.GlossaryIssue
	total := (len(entries) + e.batchSize - 1) / e.batchSize
	for b := 0; b*e.batchSize < len(entries); b++ {
		if err := checkCancelled(ctx); err != nil {
			return err
		}
		lo := b * e.batchSize
		hi := min(lo+e.batchSize, len(entries))

		lines := make([]glossaryLine, 0, hi-lo)
		for _, entry := range entries[lo:hi] {
			lines = append(lines, glossaryLine{Term: entry.TermName, Definition: entry.Definition})
		}

		var result reviewResult
		err := e.llm.GenerateStructured(ctx, reviewPrompt(lines), reviewSchema, &result)
		if err != nil {
			if err = asCancelled(err); types.IsCancelled(err) {
				return err
			}
			rc.Warning("review batch %d/%d failed: %v", b+1, total, err)
			continue
		}
		for _, iss := range result.Issues {
			issueType := types.IssueType(iss.IssueType)
			if !issueType.IsValid() {
				rc.Warning("review returned unknown issue type %q for %q, skipping", iss.IssueType, iss.TermName)
				continue
			}
			issues = append(issues, types.GlossaryIssue{
				TermName:        iss.TermName,
				IssueType:       issueType,
				Description:     iss.Description,
				ShouldExclude:   iss.ShouldExclude,
				ExclusionReason: iss.ExclusionReason,
			})
		}
		rc.Progress("review", hi, len(entries), "")
	}

	err = c.Tx(ctx, func(tc *sqlite.Conn) error {
		if err := sqlite.ReplaceIssues(ctx, tc, issues); err != nil {
			return err
		}
		if len(issues) == 0 {
			// Nothing to refine: promote the provisional glossary as-is.
			return sqlite.ReplaceGlossary(ctx, tc, sqlite.TableRefined, entries)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		rc.Info("review found no issues, promoted %d entries unchanged", len(entries))
	} else {
		rc.Info("review recorded %d issues", len(issues))
	}
	return nil
}
