package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rcliao/context-window/internal/model"
)

// FileStore keeps each session as a JSONL file of messages in one directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

var _ Sessions = (*FileStore)(nil)

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, filepath.Base(id)+".jsonl")
}

func (f *FileStore) Session(id string) Persistence {
	return &fileSession{store: f, path: f.path(id)}
}

// ListSessions returns one entry per session file, most recently modified first.
func (f *FileStore) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var sessions []SessionInfo
	for _, e := range entries {
		id, ok := strings.CutSuffix(e.Name(), ".jsonl")
		if !ok || e.IsDir() {
			continue
		}
		msgs, err := f.Session(id).LoadMessages(ctx)
		if err != nil {
			return nil, err
		}
		info := SessionInfo{ID: id, Messages: len(msgs)}
		if fi, err := e.Info(); err == nil {
			info.CreatedAt = fi.ModTime().UTC()
		}
		if len(msgs) > 0 {
			info.CreatedAt = msgs[0].Timestamp
			last := msgs[len(msgs)-1].Timestamp
			info.LastActivity = &last
		}
		sessions = append(sessions, info)
	}
	slices.SortFunc(sessions, func(a, b SessionInfo) int {
		return activity(b).Compare(activity(a))
	})
	return sessions, nil
}

func (f *FileStore) DeleteSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

type fileSession struct {
	store *FileStore
	path  string
}

// SaveMessages appends new messages; when an id is already present the
// file is rewritten with the stored copy replaced in place.
func (s *fileSession) SaveMessages(_ context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return err
	}
	pos := make(map[string]int, len(existing))
	for i, m := range existing {
		pos[m.ID] = i
	}

	replaced := false
	var appended []model.Message
	for _, m := range msgs {
		if i, ok := pos[m.ID]; ok {
			existing[i] = m
			replaced = true
			continue
		}
		pos[m.ID] = len(existing)
		existing = append(existing, m)
		appended = append(appended, m)
	}
	if replaced {
		return s.rewrite(existing)
	}

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, m := range appended {
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("write message %s: %w", m.ID, err)
		}
	}
	return file.Sync()
}

func (s *fileSession) LoadMessages(_ context.Context) ([]model.Message, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.read()
}

func (s *fileSession) DeleteMessages(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	msgs, err := s.read()
	if err != nil {
		return err
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := slices.DeleteFunc(msgs, func(m model.Message) bool { return drop[m.ID] })
	return s.rewrite(kept)
}

func (s *fileSession) Clear(_ context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.rewrite(nil)
}

// read loads every message; malformed lines are skipped.
func (s *fileSession) read() ([]model.Message, error) {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer file.Close()

	var msgs []model.Message
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m model.Message
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return msgs, nil
}

// rewrite replaces the file atomically via a temp file and rename.
func (s *fileSession) rewrite(msgs []model.Message) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			tmp.Close()
			return fmt.Errorf("write message %s: %w", m.ID, err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func activity(s SessionInfo) time.Time {
	if s.LastActivity != nil {
		return *s.LastActivity
	}
	return s.CreatedAt
}
