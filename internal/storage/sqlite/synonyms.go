package sqlite

import (
	"context"
	"fmt"

	"github.com/genglossary/genglossary/internal/types"
)

// CreateSynonymGroup creates a group and its members in one nested
// transaction. The primary term must be among the members; the UNIQUE
// constraint on member text enforces at-most-one-group-per-term and surfaces
// as ErrConflict.
func CreateSynonymGroup(ctx context.Context, c *Conn, g *types.SynonymGroup) (int64, error) {
	hasPrimary := false
	for _, m := range g.Members {
		if m == g.PrimaryTerm {
			hasPrimary = true
			break
		}
	}
	if !hasPrimary {
		return 0, fmt.Errorf("%w: primary term %q must be a group member", types.ErrValidation, g.PrimaryTerm)
	}

	var groupID int64
	err := c.Tx(ctx, func(tc *Conn) error {
		res, err := tc.ExecContext(ctx, `
			INSERT INTO term_synonym_groups (primary_term_text) VALUES (?)
		`, g.PrimaryTerm)
		if err != nil {
			return wrapDBError("create synonym group", err)
		}
		if groupID, err = res.LastInsertId(); err != nil {
			return wrapDBError("create synonym group", err)
		}
		for _, m := range g.Members {
			if _, err := tc.ExecContext(ctx, `
				INSERT INTO term_synonym_members (group_id, term_text) VALUES (?, ?)
			`, groupID, m); err != nil {
				return wrapDBError("add synonym member", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return groupID, nil
}

// ListSynonymGroups returns all groups with their members.
func ListSynonymGroups(ctx context.Context, c *Conn) ([]types.SynonymGroup, error) {
	rows, err := c.QueryContext(ctx, `
		SELECT g.id, g.primary_term_text, m.term_text
		FROM term_synonym_groups g
		JOIN term_synonym_members m ON m.group_id = g.id
		ORDER BY g.id, m.term_text
	`)
	if err != nil {
		return nil, wrapDBError("list synonym groups", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []types.SynonymGroup
	byID := make(map[int64]int)
	for rows.Next() {
		var id int64
		var primary, member string
		if err := rows.Scan(&id, &primary, &member); err != nil {
			return nil, wrapDBError("scan synonym group", err)
		}
		idx, ok := byID[id]
		if !ok {
			groups = append(groups, types.SynonymGroup{ID: id, PrimaryTerm: primary})
			idx = len(groups) - 1
			byID[id] = idx
		}
		groups[idx].Members = append(groups[idx].Members, member)
	}
	return groups, wrapDBError("list synonym groups", rows.Err())
}

// GetSynonymGroupForTerm returns the group containing a term, or ErrNotFound.
func GetSynonymGroupForTerm(ctx context.Context, c *Conn, termText string) (*types.SynonymGroup, error) {
	var id int64
	var primary string
	err := c.QueryRowContext(ctx, `
		SELECT g.id, g.primary_term_text
		FROM term_synonym_groups g
		JOIN term_synonym_members m ON m.group_id = g.id
		WHERE m.term_text = ?
	`, termText).Scan(&id, &primary)
	if err != nil {
		return nil, wrapDBError("get synonym group", err)
	}

	g := &types.SynonymGroup{ID: id, PrimaryTerm: primary}
	rows, err := c.QueryContext(ctx, `
		SELECT term_text FROM term_synonym_members WHERE group_id = ? ORDER BY term_text
	`, id)
	if err != nil {
		return nil, wrapDBError("get synonym group members", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, wrapDBError("scan synonym member", err)
		}
		g.Members = append(g.Members, m)
	}
	return g, wrapDBError("get synonym group members", rows.Err())
}

// DeleteSynonymGroup removes a group; members cascade.
func DeleteSynonymGroup(ctx context.Context, c *Conn, id int64) error {
	res, err := c.ExecContext(ctx, `DELETE FROM term_synonym_groups WHERE id = ?`, id)
	if err != nil {
		return wrapDBError("delete synonym group", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("delete synonym group", err)
	}
	if n == 0 {
		return fmt.Errorf("delete synonym group %d: %w", id, ErrNotFound)
	}
	return nil
}
