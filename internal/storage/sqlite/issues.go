package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/genglossary/genglossary/internal/types"
)

// ReplaceIssues clears glossary_issues and writes the review stage's full
// issue set. The review stage calls this once, in a single transaction, after
// all batches have been processed.
func ReplaceIssues(ctx context.Context, c *Conn, issues []types.GlossaryIssue) error {
	if _, err := c.ExecContext(ctx, `DELETE FROM glossary_issues`); err != nil {
		return wrapDBError("clear glossary issues", err)
	}
	rows := make([][]any, len(issues))
	for i, issue := range issues {
		if !issue.IssueType.IsValid() {
			return fmt.Errorf("%w: unknown issue type %q", types.ErrValidation, issue.IssueType)
		}
		var reason any
		if issue.ExclusionReason != "" {
			reason = issue.ExclusionReason
		}
		rows[i] = []any{issue.TermName, string(issue.IssueType), issue.Description, boolToInt(issue.ShouldExclude), reason}
	}
	return BatchInsert(ctx, c, "glossary_issues",
		[]string{"term_name", "issue_type", "description", "should_exclude", "exclusion_reason"}, rows)
}

// ListIssues returns all recorded glossary issues ordered by term name.
func ListIssues(ctx context.Context, c *Conn) ([]types.GlossaryIssue, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT id, term_name, issue_type, description, should_exclude, exclusion_reason
		FROM glossary_issues ORDER BY term_name, id
	`)
	if err != nil {
		return nil, wrapDBError("list glossary issues", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []types.GlossaryIssue
	for rows.Next() {
		var issue types.GlossaryIssue
		var issueType string
		var shouldExclude int
		var reason sql.NullString
		if err := rows.Scan(&issue.ID, &issue.TermName, &issueType, &issue.Description, &shouldExclude, &reason); err != nil {
			return nil, wrapDBError("scan glossary issue", err)
		}
		issue.IssueType = types.IssueType(issueType)
		issue.ShouldExclude = shouldExclude != 0
		issue.ExclusionReason = reason.String
		issues = append(issues, issue)
	}
	return issues, wrapDBError("list glossary issues", rows.Err())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
