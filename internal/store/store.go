// Package store provides durable conversation logs (SQLite and JSONL files)
// and a SQLite-backed vector index.
package store

import (
	"context"
	"time"

	"github.com/rcliao/context-window/internal/model"
)

// Persistence is the durable log of one conversation session.
type Persistence interface {
	// SaveMessages appends messages in order. A message whose id is
	// already stored replaces the stored copy in place.
	SaveMessages(ctx context.Context, msgs []model.Message) error

	// LoadMessages returns the session's messages in insertion order.
	LoadMessages(ctx context.Context) ([]model.Message, error)

	// DeleteMessages removes messages by id; unknown ids are ignored.
	DeleteMessages(ctx context.Context, ids []string) error

	// Clear removes every message of the session.
	Clear(ctx context.Context) error
}

// SessionInfo summarizes a stored session.
type SessionInfo struct {
	ID           string     `json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	Messages     int        `json:"messages"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// Sessions is implemented by backends that hold more than one session.
type Sessions interface {
	Session(id string) Persistence
	ListSessions(ctx context.Context) ([]SessionInfo, error)
	DeleteSession(ctx context.Context, id string) error
	Close() error
}
