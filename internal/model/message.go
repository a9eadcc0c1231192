// Package model defines the conversation and context-selection data types.
package model

import (
	"crypto/rand"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ValidRoles are the allowed message roles.
var ValidRoles = map[Role]bool{
	RoleUser:      true,
	RoleAssistant: true,
	RoleSystem:    true,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return ValidRoles[r]
}

// Message is a single immutable turn in a conversation.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a new, never reused, time-ordered message id.
func NewID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewMessage creates a message with a fresh id and the current UTC time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// With returns a copy of m sharing its id, with content and metadata replaced.
// A nil metadata keeps the original metadata.
func (m Message) With(content string, metadata map[string]any) Message {
	out := m
	out.Content = content
	if metadata != nil {
		out.Metadata = maps.Clone(metadata)
	} else {
		out.Metadata = maps.Clone(m.Metadata)
	}
	return out
}

// Chunk is a token-bounded slice of a message produced for embedding.
type Chunk struct {
	ParentMessageID string    `json:"parent_message_id"`
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	EstimatedTokens int       `json:"estimated_tokens"`
	SequenceIndex   int       `json:"sequence_index"`
	Timestamp       time.Time `json:"timestamp"`
}

// VectorEntry is an embedded chunk owned by a vector index.
type VectorEntry struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Metadata keys set on vector entries by the embedding pipeline.
const (
	MetaMessageID   = "message_id"
	MetaChunkIndex  = "chunk_index"
	MetaRole        = "role"
	MetaContentHash = "content_hash"
)

// MessageID returns the id of the message the entry was derived from,
// falling back to the "<messageId>#<chunk>" id convention.
func (e VectorEntry) MessageID() string {
	if id, ok := e.Metadata[MetaMessageID].(string); ok {
		return id
	}
	id, _, _ := strings.Cut(e.ID, "#")
	return id
}

// Role returns the role of the source message, if recorded.
func (e VectorEntry) Role() Role {
	if r, ok := e.Metadata[MetaRole].(string); ok {
		return Role(r)
	}
	return ""
}
