// Package conversation is the façade that owns a session's message log,
// keeps the vector index in step with it and assembles prompts.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/rcliao/context-window/internal/chunker"
	"github.com/rcliao/context-window/internal/memory"
	"github.com/rcliao/context-window/internal/model"
	"github.com/rcliao/context-window/internal/store"
)

// FollowUpGenerator suggests questions from an assembled prompt context.
type FollowUpGenerator interface {
	Generate(ctx context.Context, promptContext string) ([]string, error)
}

// StoredHook is called after a message is durably appended, with the
// vector entries written for it (nil when indexing is off or failed).
type StoredHook func(msg model.Message, entries []model.VectorEntry)

// Manager is the single owner of one conversation session.
// It is not safe for concurrent use.
type Manager struct {
	sessionID   string
	memory      *memory.Manager
	persist     store.Persistence
	followUps   FollowUpGenerator
	chunking    chunker.Options
	callTimeout time.Duration
	logger      *slog.Logger
	onStored    StoredHook

	messages      []model.Message
	lastPrompt    string
	lastTokens    int
	lastStrategy  string
	indexFailures int
}

// Option configures a Manager.
type Option func(*Manager)

// WithSessionID sets the session id. Defaults to a new UUID.
func WithSessionID(id string) Option {
	return func(m *Manager) { m.sessionID = id }
}

// WithPersistence makes appends durable through p.
func WithPersistence(p store.Persistence) Option {
	return func(m *Manager) { m.persist = p }
}

// WithFollowUps sets the follow-up question generator.
func WithFollowUps(g FollowUpGenerator) Option {
	return func(m *Manager) { m.followUps = g }
}

// WithChunking sets how messages are chunked before embedding.
func WithChunking(opts chunker.Options) Option {
	return func(m *Manager) { m.chunking = opts }
}

// WithCallTimeout bounds every call to an external collaborator.
func WithCallTimeout(d time.Duration) Option {
	return func(m *Manager) { m.callTimeout = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager around mem. A nil mem gets the default memory manager.
func New(mem *memory.Manager, opts ...Option) (*Manager, error) {
	if mem == nil {
		var err error
		if mem, err = memory.New(nil); err != nil {
			return nil, err
		}
	}
	m := &Manager{
		memory:   mem,
		chunking: chunker.DefaultOptions(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sessionID == "" {
		m.sessionID = uuid.NewString()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if err := m.chunking.Validate(); err != nil {
		return nil, err
	}
	if m.callTimeout < 0 {
		return nil, fmt.Errorf("%w: call timeout must be non-negative", model.ErrInvalidConfig)
	}
	m.logger = m.logger.With("session", m.sessionID)
	return m, nil
}

// SessionID returns the session identifier.
func (m *Manager) SessionID() string { return m.sessionID }

// OnMessageStored registers the hook run after each durable append.
func (m *Manager) OnMessageStored(h StoredHook) { m.onStored = h }

func (m *Manager) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.callTimeout > 0 {
		return context.WithTimeout(ctx, m.callTimeout)
	}
	return context.WithCancel(ctx)
}

// Load replaces the in-process log with the persisted messages.
func (m *Manager) Load(ctx context.Context) error {
	if m.persist == nil {
		return nil
	}
	callCtx, cancel := m.callCtx(ctx)
	defer cancel()

	msgs, err := m.persist.LoadMessages(callCtx)
	if err != nil {
		return model.WrapCall(model.ErrPersistence, "load messages", err)
	}
	m.messages = msgs
	m.logger.Debug("conversation: loaded", "messages", len(msgs))
	return nil
}

// AppendMessage adds msg to the log. It assigns an id and timestamp when
// missing. The message is persisted first; if that fails nothing is
// appended. Indexing runs afterwards and its failure is returned wrapped
// in model.ErrNotIndexed while the message stays in the log. Blank
// content is logged but produces no vectors.
func (m *Manager) AppendMessage(ctx context.Context, msg model.Message) (model.Message, error) {
	if !msg.Role.Valid() {
		return msg, fmt.Errorf("invalid role %q", msg.Role)
	}
	if msg.ID == "" {
		msg.ID = model.NewID()
	} else if m.indexOf(msg.ID) >= 0 {
		return msg, fmt.Errorf("%w: message %s already exists", model.ErrDuplicate, msg.ID)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if m.persist != nil {
		callCtx, cancel := m.callCtx(ctx)
		err := m.persist.SaveMessages(callCtx, []model.Message{msg})
		cancel()
		if err != nil {
			return msg, model.WrapCall(model.ErrPersistence, "save message", err)
		}
	}
	m.messages = append(m.messages, msg)

	entries, err := m.indexMessages(ctx, []model.Message{msg})
	if err != nil {
		m.indexFailures++
		m.logger.Warn("conversation: indexing failed, message kept", "message", msg.ID, "err", err)
		entries = nil
	}
	if m.onStored != nil {
		m.onStored(msg, entries)
	}
	if err != nil {
		return msg, fmt.Errorf("%w: index message %s: %w", model.ErrNotIndexed, msg.ID, err)
	}
	return msg, nil
}

// AppendUserMessage appends text as a user message.
func (m *Manager) AppendUserMessage(ctx context.Context, text string) (model.Message, error) {
	return m.AppendMessage(ctx, model.NewMessage(model.RoleUser, text))
}

// AppendAssistantMessage appends text as an assistant message.
func (m *Manager) AppendAssistantMessage(ctx context.Context, text string) (model.Message, error) {
	return m.AppendMessage(ctx, model.NewMessage(model.RoleAssistant, text))
}

// AppendSystemMessage appends text as a system message.
func (m *Manager) AppendSystemMessage(ctx context.Context, text string) (model.Message, error) {
	return m.AppendMessage(ctx, model.NewMessage(model.RoleSystem, text))
}

// indexMessages chunks, embeds and indexes msgs. It is a no-op when no
// index is configured.
func (m *Manager) indexMessages(ctx context.Context, msgs []model.Message) ([]model.VectorEntry, error) {
	idx, pipeline := m.memory.Index(), m.memory.Pipeline()
	if idx == nil || pipeline == nil {
		return nil, nil
	}

	var chunks []model.Chunk
	for _, msg := range msgs {
		chunks = append(chunks, chunker.ChunkMessage(msg, m.chunking, m.memory.Counter())...)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	callCtx, cancel := m.callCtx(ctx)
	defer cancel()

	entries, err := pipeline.EmbedChunks(callCtx, chunks)
	if err != nil {
		return nil, err
	}
	if err := idx.Insert(callCtx, entries); err != nil {
		return nil, model.WrapCall(model.ErrPersistence, "insert vectors", err)
	}
	return entries, nil
}

// Messages returns a copy of the log in insertion order.
func (m *Manager) Messages() []model.Message {
	return slices.Clone(m.messages)
}

// Message returns the message with the given id.
func (m *Manager) Message(id string) (model.Message, error) {
	i := m.indexOf(id)
	if i < 0 {
		return model.Message{}, fmt.Errorf("%w: message %s", model.ErrNotFound, id)
	}
	return m.messages[i], nil
}

func (m *Manager) indexOf(id string) int {
	return slices.IndexFunc(m.messages, func(msg model.Message) bool { return msg.ID == id })
}

// DeleteMessages removes messages from persistence, the index and the log.
// Unknown ids are ignored. An index failure is returned after the log and
// persistence have been updated.
func (m *Manager) DeleteMessages(ctx context.Context, ids []string) error {
	drop := make(map[string]bool, len(ids))
	var targets []model.Message
	for _, id := range ids {
		if i := m.indexOf(id); i >= 0 && !drop[id] {
			drop[id] = true
			targets = append(targets, m.messages[i])
		}
	}
	if len(targets) == 0 {
		return nil
	}

	if m.persist != nil {
		callCtx, cancel := m.callCtx(ctx)
		err := m.persist.DeleteMessages(callCtx, ids)
		cancel()
		if err != nil {
			return model.WrapCall(model.ErrPersistence, "delete messages", err)
		}
	}
	m.messages = slices.DeleteFunc(m.messages, func(msg model.Message) bool { return drop[msg.ID] })

	if idx := m.memory.Index(); idx != nil {
		msgIDs := make([]string, len(targets))
		for i, msg := range targets {
			msgIDs[i] = msg.ID
		}
		callCtx, cancel := m.callCtx(ctx)
		defer cancel()
		if err := idx.DeleteByMessageIDs(callCtx, msgIDs); err != nil {
			m.indexFailures++
			return model.WrapCall(model.ErrPersistence, "delete vectors", err)
		}
	}
	return nil
}

// Reindex rebuilds the vector index from the log and returns the number
// of entries written.
func (m *Manager) Reindex(ctx context.Context) (int, error) {
	idx := m.memory.Index()
	if idx == nil || m.memory.Pipeline() == nil {
		return 0, nil
	}
	callCtx, cancel := m.callCtx(ctx)
	err := idx.Clear(callCtx)
	cancel()
	if err != nil {
		return 0, model.WrapCall(model.ErrPersistence, "clear vectors", err)
	}

	entries, err := m.indexMessages(ctx, m.messages)
	if err != nil {
		m.indexFailures++
		return 0, fmt.Errorf("reindex: %w", err)
	}
	m.logger.Info("conversation: reindexed", "messages", len(m.messages), "entries", len(entries))
	return len(entries), nil
}

// Recall returns the k index entries most similar to query.
func (m *Manager) Recall(ctx context.Context, query string, k int) ([]model.Recalled, error) {
	callCtx, cancel := m.callCtx(ctx)
	defer cancel()
	return m.memory.Recall(callCtx, query, k)
}

// Clear empties the index, the persisted session and the log, in that
// order. If persistence fails the index is rebuilt from the intact log
// so the two never disagree.
func (m *Manager) Clear(ctx context.Context) error {
	if idx := m.memory.Index(); idx != nil {
		callCtx, cancel := m.callCtx(ctx)
		err := idx.Clear(callCtx)
		cancel()
		if err != nil {
			return model.WrapCall(model.ErrPersistence, "clear vectors", err)
		}
	}

	if m.persist != nil {
		callCtx, cancel := m.callCtx(ctx)
		err := m.persist.Clear(callCtx)
		cancel()
		if err != nil {
			if _, rerr := m.Reindex(ctx); rerr != nil {
				m.logger.Error("conversation: restoring index after failed clear", "err", rerr)
				return errors.Join(model.WrapCall(model.ErrPersistence, "clear messages", err), rerr)
			}
			return model.WrapCall(model.ErrPersistence, "clear messages", err)
		}
	}

	m.messages = nil
	m.lastPrompt = ""
	m.lastTokens = 0
	m.lastStrategy = ""
	return nil
}

// GenerateFollowUpQuestions asks the configured generator for follow-up
// questions. Without a generator it returns an empty slice.
func (m *Manager) GenerateFollowUpQuestions(ctx context.Context) ([]string, error) {
	if m.followUps == nil {
		return []string{}, nil
	}
	promptContext := m.lastPrompt
	if promptContext == "" {
		promptContext = renderConversation(m.messages[max(0, len(m.messages)-followUpMessages):])
	}

	callCtx, cancel := m.callCtx(ctx)
	defer cancel()
	questions, err := m.followUps.Generate(callCtx, promptContext)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: generate follow-ups: %w", model.ErrTimeout, err)
		}
		return nil, fmt.Errorf("generate follow-ups: %w", err)
	}
	if questions == nil {
		questions = []string{}
	}
	return questions, nil
}

// followUpMessages is how many recent messages seed follow-ups before any prompt was built.
const followUpMessages = 10
