package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/context-window/internal/model"
)

// SearchParams holds parameters for a keyword search over stored messages.
type SearchParams struct {
	Session string // empty searches every session
	Query   string
	Limit   int
}

// SearchResult is a message matching a keyword search.
type SearchResult struct {
	model.Message
	Session string `json:"session"`
	Snippet string `json:"snippet"`
}

// Search finds messages whose content matches every query term, best match first.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}
	match := ftsQuery(p.Query)
	if match == "" {
		return nil, nil
	}

	where := []string{"messages_fts MATCH ?"}
	args := []any{match}
	if p.Session != "" {
		where = append(where, "m.session_id = ?")
		args = append(args, p.Session)
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.role, m.content, m.created_at, m.meta, m.session_id,
		       snippet(messages_fts, 0, '[', ']', '…', 12)
		FROM messages_fts
		JOIN messages m ON m.seq = messages_fts.rowid
		WHERE %s
		ORDER BY bm25(messages_fts), m.seq DESC
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		msg, err := scanMessage(rows, &r.Session, &r.Snippet)
		if err != nil {
			return nil, err
		}
		r.Message = msg
		results = append(results, r)
	}
	return results, rows.Err()
}

// ftsQuery quotes each term so user input never reaches FTS5 as syntax.
func ftsQuery(q string) string {
	var terms []string
	for _, t := range strings.Fields(q) {
		t = strings.ReplaceAll(t, `"`, `""`)
		terms = append(terms, `"`+t+`"`)
	}
	return strings.Join(terms, " ")
}
