package index

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/rcliao/context-window/internal/model"
)

// MemoryIndex is a process-local Index. It is safe for concurrent use.
type MemoryIndex struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]stored
	nextSeq int64
}

type stored struct {
	entry model.VectorEntry
	seq   int64
}

// Ensure MemoryIndex implements Index at compile time.
var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index for vectors of length dims.
func NewMemoryIndex(dims int) (*MemoryIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: index dimensionality must be positive, got %d", model.ErrInvalidConfig, dims)
	}
	return &MemoryIndex{dims: dims, entries: make(map[string]stored)}, nil
}

func (m *MemoryIndex) Dims() int { return m.dims }

// Insert validates every entry before storing any of them.
func (m *MemoryIndex) Insert(_ context.Context, entries []model.VectorEntry) error {
	for _, e := range entries {
		if err := CheckDims(m.dims, e.Embedding, "entry "+e.ID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		e.Embedding = append([]float32(nil), e.Embedding...)
		e.Metadata = maps.Clone(e.Metadata)
		m.entries[e.ID] = stored{entry: e, seq: m.nextSeq}
		m.nextSeq++
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, vector []float32, k int) ([]Match, error) {
	if err := CheckDims(m.dims, vector, "query vector"); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Match{}, nil
	}

	m.mu.RLock()
	candidates := make([]Ranked, 0, len(m.entries))
	for _, s := range m.entries {
		candidates = append(candidates, Ranked{Match: Match{Entry: s.entry}, Seq: s.seq})
	}
	m.mu.RUnlock()

	return Rank(vector, candidates, k), nil
}

func (m *MemoryIndex) DeleteByIDs(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.entries, id)
	}
	return nil
}

func (m *MemoryIndex) DeleteByMessageIDs(_ context.Context, messageIDs []string) error {
	drop := make(map[string]bool, len(messageIDs))
	for _, id := range messageIDs {
		drop[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.DeleteFunc(m.entries, func(_ string, s stored) bool {
		return drop[s.entry.MessageID()]
	})
	return nil
}

func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MemoryIndex) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]stored)
	return nil
}
