package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath        string         `json:"db_path"`
	DBSizeBytes   int64          `json:"db_size_bytes"`
	TotalSessions int            `json:"total_sessions"`
	TotalMessages int            `json:"total_messages"`
	TotalVectors  int            `json:"total_vectors"`
	Sessions      []SessionStats `json:"sessions"`
}

// SessionStats holds per-session counts.
type SessionStats struct {
	Session  string `json:"session"`
	Messages int    `json:"messages"`
	Vectors  int    `json:"vectors"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	// DB file size
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.TotalSessions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&st.TotalMessages)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&st.TotalVectors)

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id,
		       (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id) AS msgs,
		       (SELECT COUNT(*) FROM vectors v WHERE v.session_id = s.id) AS vecs
		FROM sessions s ORDER BY msgs DESC, s.id`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ss SessionStats
		rows.Scan(&ss.Session, &ss.Messages, &ss.Vectors)
		st.Sessions = append(st.Sessions, ss)
	}
	return st, rows.Err()
}
