package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rcliao/context-window/internal/model"
)

const (
	DefaultBatchSize = 16
	DefaultCacheSize = 1024
	DefaultTimeout   = 30 * time.Second
)

// Pipeline batches chunk texts through an Embedder and validates the results.
// Vectors are cached by content hash so identical texts are embedded once.
type Pipeline struct {
	embedder  Embedder
	batchSize int
	timeout   time.Duration
	cacheSize int
	logger    *slog.Logger

	mu         sync.Mutex
	cache      map[string]Vector
	cacheOrder []string
}

// PipelineOption configures optional Pipeline behavior.
type PipelineOption func(*Pipeline)

// WithBatchSize sets how many texts go into one EmbedBatch call.
func WithBatchSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithTimeout bounds each call to the embedder. Zero disables the bound.
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.timeout = d }
}

// WithCacheSize sets the number of cached vectors. Zero disables caching.
func WithCacheSize(n int) PipelineOption {
	return func(p *Pipeline) { p.cacheSize = n }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline wraps e. The embedder must declare a positive dimensionality.
func NewPipeline(e Embedder, opts ...PipelineOption) (*Pipeline, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: embedding pipeline requires an embedder", model.ErrInvalidConfig)
	}
	if e.Dims() <= 0 {
		return nil, fmt.Errorf("%w: embedder %s declares %d dimensions", model.ErrInvalidConfig, e.Name(), e.Dims())
	}
	p := &Pipeline{
		embedder:  e,
		batchSize: DefaultBatchSize,
		timeout:   DefaultTimeout,
		cacheSize: DefaultCacheSize,
		logger:    slog.Default(),
		cache:     make(map[string]Vector),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Dims returns the embedder's declared dimensionality.
func (p *Pipeline) Dims() int { return p.embedder.Dims() }

// Name returns the embedder's identifier.
func (p *Pipeline) Name() string { return p.embedder.Name() }

// EmbedChunks turns chunks into vector entries with ids "<messageId>#<seq>".
// Writing the entries to an index is the caller's job.
func (p *Pipeline) EmbedChunks(ctx context.Context, chunks []model.Chunk) ([]model.VectorEntry, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	hashes := make([]string, len(chunks))
	var pending []string
	pendingHash := map[string]bool{}
	vectors := map[string]Vector{}

	for i, c := range chunks {
		h := HashText(c.Content)
		hashes[i] = h
		if v, ok := p.cached(h); ok {
			vectors[h] = v
			continue
		}
		if !pendingHash[h] {
			pendingHash[h] = true
			pending = append(pending, c.Content)
		}
	}

	for start := 0; start < len(pending); start += p.batchSize {
		end := min(start+p.batchSize, len(pending))
		batch := pending[start:end]

		vecs, err := p.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for i, text := range batch {
			h := HashText(text)
			vectors[h] = vecs[i]
			p.store(h, vecs[i])
		}
	}

	entries := make([]model.VectorEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = model.VectorEntry{
			ID:        fmt.Sprintf("%s#%d", c.ParentMessageID, c.SequenceIndex),
			Embedding: append(Vector(nil), vectors[hashes[i]]...),
			Content:   c.Content,
			Metadata: map[string]any{
				model.MetaMessageID:   c.ParentMessageID,
				model.MetaChunkIndex:  c.SequenceIndex,
				model.MetaRole:        string(c.Role),
				model.MetaContentHash: hashes[i],
			},
			Timestamp: c.Timestamp,
		}
	}

	p.logger.Debug("embedding: embedded chunks",
		"embedder", p.embedder.Name(),
		"chunks", len(chunks),
		"requested", len(pending),
	)
	return entries, nil
}

// EmbedQuery embeds a recall query and checks its dimensionality.
func (p *Pipeline) EmbedQuery(ctx context.Context, text string) (Vector, error) {
	vecs, err := p.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *Pipeline) embedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	vecs, err := p.embedder.EmbedBatch(callCtx, texts)
	if err != nil {
		return nil, model.WrapCall(model.ErrEmbedding, p.embedder.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
			model.ErrEmbedding, p.embedder.Name(), len(vecs), len(texts))
	}
	dims := p.embedder.Dims()
	for i, v := range vecs {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: %w: %s returned vector %d with length %d, declared %d",
				model.ErrEmbedding, model.ErrDimensionMismatch, p.embedder.Name(), i, len(v), dims)
		}
	}
	return vecs, nil
}

func (p *Pipeline) cached(hash string) (Vector, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.cache[hash]
	return v, ok
}

func (p *Pipeline) store(hash string, v Vector) {
	if p.cacheSize <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.cache[hash]; ok {
		return
	}
	for len(p.cacheOrder) >= p.cacheSize {
		delete(p.cache, p.cacheOrder[0])
		p.cacheOrder = p.cacheOrder[1:]
	}
	p.cache[hash] = v
	p.cacheOrder = append(p.cacheOrder, hash)
}
