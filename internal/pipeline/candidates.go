package pipeline

import (
	"regexp"
	"sort"
	"strings"

	"github.com/genglossary/genglossary/internal/types"
)

// candidate is one surface form found by the lexical scan, with the places
// it appeared. Classification happens later in batched LLM calls.
type candidate struct {
	Text        string
	Occurrences []types.Occurrence
}

var candidatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z][a-z]+(?: [A-Z][a-z]+)+\b`), // Capitalized phrases (e.g. Run Manager)
	regexp.MustCompile(`\b[A-Z][a-z]+(?:[A-Z][a-z]+)+\b`),  // CamelCase (e.g. LogBus)
	regexp.MustCompile(`\b[a-z]+(?:-[a-z]+)+\b`),           // kebab-case (e.g. doc-root)
	regexp.MustCompile(`\b[a-z]+(?:_[a-z]+)+\b`),           // snake_case identifiers
	regexp.MustCompile(`\b[A-Z]{2,}[A-Za-z]*\b`),           // Acronyms (e.g. SSE, LLMs)
	regexp.MustCompile(`\b[A-Z][a-z]{3,}\b`),               // Single capitalized words
}

const (
	minCandidateLen       = 3
	maxCandidates         = 500
	maxOccurrencesPerTerm = 5
	maxOccurrenceContext  = 200
)

// scanCandidates runs the lexical patterns over every document line and
// collects deduplicated candidates with their occurrences. Order is stable
// (sorted by text) so batching is deterministic.
func scanCandidates(docs []types.Document) []candidate {
	byKey := make(map[string]*candidate)

	for _, doc := range docs {
		lines := strings.Split(doc.Content, "\n")
		for i, line := range lines {
			for _, pat := range candidatePatterns {
				for _, match := range pat.FindAllString(line, -1) {
					if len(match) < minCandidateLen {
						continue
					}
					key := strings.ToLower(match)
					c, ok := byKey[key]
					if !ok {
						if len(byKey) >= maxCandidates {
							continue
						}
						c = &candidate{Text: match}
						byKey[key] = c
					}
					if len(c.Occurrences) < maxOccurrencesPerTerm {
						ctxLine := strings.TrimSpace(line)
						if len(ctxLine) > maxOccurrenceContext {
							ctxLine = ctxLine[:maxOccurrenceContext]
						}
						c.Occurrences = append(c.Occurrences, types.Occurrence{
							DocumentPath: doc.FileName,
							LineNumber:   i + 1,
							Context:      ctxLine,
						})
					}
				}
			}
		}
	}

	out := make([]candidate, 0, len(byKey))
	for _, c := range byKey {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// findOccurrences locates a term in the loaded documents for definition
// context. Case-insensitive substring match per line.
func findOccurrences(docs []types.Document, term string) []types.Occurrence {
	var occ []types.Occurrence
	needle := strings.ToLower(term)
	for _, doc := range docs {
		lines := strings.Split(doc.Content, "\n")
		for i, line := range lines {
			if !strings.Contains(strings.ToLower(line), needle) {
				continue
			}
			ctxLine := strings.TrimSpace(line)
			if len(ctxLine) > maxOccurrenceContext {
				ctxLine = ctxLine[:maxOccurrenceContext]
			}
			occ = append(occ, types.Occurrence{
				DocumentPath: doc.FileName,
				LineNumber:   i + 1,
				Context:      ctxLine,
			})
			if len(occ) >= maxOccurrencesPerTerm {
				return occ
			}
		}
	}
	return occ
}
