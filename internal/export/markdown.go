// Package export renders a project's glossary as Markdown.
package export

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/genglossary/genglossary/internal/storage/sqlite"
	"github.com/genglossary/genglossary/internal/types"
)

// Markdown renders the refined glossary, falling back to the provisional
// glossary when no refined entries exist.
func Markdown(ctx context.Context, c *sqlite.Conn, projectName string) (string, error) {
	entries, err := sqlite.ListGlossary(ctx, c, sqlite.TableRefined)
	if err != nil {
		return "", err
	}
	source := "refined"
	if len(entries) == 0 {
		entries, err = sqlite.ListGlossary(ctx, c, sqlite.TableProvisional)
		if err != nil {
			return "", err
		}
		source = "provisional"
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("%w: glossary is empty", sqlite.ErrNotFound)
	}
	return render(projectName, source, entries), nil
}

func render(projectName, source string, entries []types.GlossaryEntry) string {
	sorted := make([]types.GlossaryEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TermName < sorted[j].TermName })

	var b strings.Builder
	fmt.Fprintf(&b, "# Glossary: %s\n\n", projectName)
	if source != "refined" {
		fmt.Fprintf(&b, "> Provisional glossary; run the review and refine stages for the final version.\n\n")
	}

	for _, e := range sorted {
		fmt.Fprintf(&b, "## %s\n\n%s\n", e.TermName, e.Definition)
		if len(e.Occurrences) > 0 {
			b.WriteString("\nSources:\n")
			for _, occ := range e.Occurrences {
				fmt.Fprintf(&b, "- `%s:%d`\n", occ.DocumentPath, occ.LineNumber)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
