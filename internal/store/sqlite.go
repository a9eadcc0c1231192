package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/context-window/internal/model"
)

// SQLiteStore keeps many sessions, their messages and their vector
// entries in one SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Sessions = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		created_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL,
		session_id  TEXT NOT NULL REFERENCES sessions(id),
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		meta        TEXT,
		UNIQUE (session_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);

	CREATE TABLE IF NOT EXISTS vectors (
		session_id  TEXT NOT NULL,
		id          TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		dims        INTEGER NOT NULL,
		embedding   BLOB NOT NULL,
		content     TEXT NOT NULL,
		meta        BLOB,
		created_at  TEXT NOT NULL,
		PRIMARY KEY (session_id, id)
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_seq ON vectors(session_id, seq);

	CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		content,
		content=messages,
		content_rowid=seq
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 triggers keep the keyword index in sync with messages
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, content) VALUES (new.seq, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.seq, old.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, content) VALUES('delete', old.seq, old.content);
			INSERT INTO messages_fts(rowid, content) VALUES (new.seq, new.content);
		END`,
	}
	for _, t := range triggers {
		if _, err := s.db.Exec(t); err != nil {
			return fmt.Errorf("create trigger: %w", err)
		}
	}
	return nil
}

// CreateSession registers a session id. Existing ids are left untouched.
func (s *SQLiteStore) CreateSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, created_at) VALUES (?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// ListSessions returns every session, most recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at, COUNT(m.seq), MAX(m.created_at)
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY COALESCE(MAX(m.created_at), s.created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var createdAt string
		var last sql.NullString
		if err := rows.Scan(&info.ID, &createdAt, &info.Messages, &last); err != nil {
			return nil, err
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if last.Valid {
			t, _ := time.Parse(time.RFC3339Nano, last.String)
			info.LastActivity = &t
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// DeleteSession removes a session with its messages and vectors.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM vectors WHERE session_id = ?`,
		`DELETE FROM messages WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	return tx.Commit()
}

// Session returns the persistence view of one session.
func (s *SQLiteStore) Session(id string) Persistence {
	return &sqliteSession{store: s, id: id}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteSession struct {
	store *SQLiteStore
	id    string
}

func (p *sqliteSession) SaveMessages(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := p.store.CreateSession(ctx, p.id); err != nil {
		return err
	}

	tx, err := p.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range msgs {
		var metaPtr *string
		if len(m.Metadata) > 0 {
			b, err := json.Marshal(m.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata of %s: %w", m.ID, err)
			}
			meta := string(b)
			metaPtr = &meta
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, role, content, created_at, meta)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(session_id, id) DO UPDATE SET role = excluded.role, content = excluded.content,
			   created_at = excluded.created_at, meta = excluded.meta`,
			m.ID, p.id, string(m.Role), m.Content, m.Timestamp.UTC().Format(time.RFC3339Nano), metaPtr)
		if err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

func (p *sqliteSession) LoadMessages(ctx context.Context) ([]model.Message, error) {
	rows, err := p.store.db.QueryContext(ctx,
		`SELECT id, role, content, created_at, meta FROM messages
		 WHERE session_id = ? ORDER BY seq`, p.id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (p *sqliteSession) DeleteMessages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{p.id}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := p.store.db.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

func (p *sqliteSession) Clear(ctx context.Context) error {
	if _, err := p.store.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, p.id); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanMessage reads id, role, content, created_at and meta, followed by
// any extra columns into extra.
func scanMessage(row scanner, extra ...any) (model.Message, error) {
	var m model.Message
	var role, createdAt string
	var meta sql.NullString

	dest := append([]any{&m.ID, &role, &m.Content, &createdAt, &meta}, extra...)
	if err := row.Scan(dest...); err != nil {
		return m, err
	}
	m.Role = model.Role(role)
	m.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
	if meta.Valid {
		json.Unmarshal([]byte(meta.String), &m.Metadata)
	}
	return m, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
