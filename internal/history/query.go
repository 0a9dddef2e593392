package history

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"minutes/internal/textutil"
)

// Query returns up to k stored meetings most similar to text, best first.
func (s *Store) Query(ctx context.Context, text string, k int) ([]Document, error) {
	ctx = ensureContext(ctx)
	if k <= 0 {
		return nil, nil
	}
	limit := k * candidateFactor

	pool := make(map[int64]meetingRow)
	if match := matchExpression(text); match != "" {
		rows, err := s.queryRows(ctx,
			`SELECT m.id, m.meeting_id, m.recorded_at, m.participants, m.body
			   FROM meetings_fts f JOIN meetings m ON m.id = f.rowid
			  WHERE meetings_fts MATCH ?
			  ORDER BY bm25(meetings_fts)
			  LIMIT ?`, match, limit)
		if err != nil {
			return nil, fmt.Errorf("history search: %w", err)
		}
		for _, row := range rows {
			pool[row.id] = row
		}
	}
	if len(pool) < limit {
		rows, err := s.queryRows(ctx,
			`SELECT id, meeting_id, recorded_at, participants, body FROM meetings ORDER BY id DESC LIMIT ?`, limit)
		if err != nil {
			return nil, fmt.Errorf("history recent: %w", err)
		}
		for _, row := range rows {
			if len(pool) >= limit {
				break
			}
			pool[row.id] = row
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}

	candidates := make([]meetingRow, 0, len(pool))
	for _, row := range pool {
		candidates = append(candidates, row)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].id > candidates[j].id })

	bodies := make([]string, len(candidates))
	for i, row := range candidates {
		bodies[i] = row.body
	}
	ranked := textutil.Rank(text, bodies)
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	docs := make([]Document, 0, len(ranked))
	for _, scored := range ranked {
		docs = append(docs, candidates[scored.Index].document(scored.Score))
	}
	return docs, nil
}

// matchExpression ORs the quoted query terms for FTS5.
func matchExpression(text string) string {
	terms := textutil.Terms(text)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " OR ")
}
