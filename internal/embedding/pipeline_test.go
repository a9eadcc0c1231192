package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rcliao/context-window/internal/model"
)

// fakeEmbedder returns one-hot-ish vectors and records batch sizes.
type fakeEmbedder struct {
	dims     int
	badDims  int // when > 0, vectors have this length instead
	err      error
	delay    time.Duration
	batches  []int
	embedded int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, len(texts))
	out := make([]Vector, len(texts))
	for i, t := range texts {
		n := f.dims
		if f.badDims > 0 {
			n = f.badDims
		}
		v := make(Vector, n)
		v[len(t)%n] = 1
		out[i] = v
		f.embedded++
	}
	return out, nil
}

func (f *fakeEmbedder) Dims() int    { return f.dims }
func (f *fakeEmbedder) Name() string { return "fake" }

func chunksOf(n int) []model.Chunk {
	chunks := make([]model.Chunk, n)
	for i := range chunks {
		chunks[i] = model.Chunk{
			ParentMessageID: "msg",
			Role:            model.RoleUser,
			Content:         fmt.Sprintf("chunk number %d", i),
			SequenceIndex:   i,
		}
	}
	return chunks
}

func TestNewPipeline_InvalidConfig(t *testing.T) {
	if _, err := NewPipeline(nil); !errors.Is(err, model.ErrInvalidConfig) {
		t.Errorf("nil embedder: expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewPipeline(&fakeEmbedder{dims: 0}); !errors.Is(err, model.ErrInvalidConfig) {
		t.Errorf("zero dims: expected ErrInvalidConfig, got %v", err)
	}
}

func TestEmbedChunks_BatchesAndIDs(t *testing.T) {
	f := &fakeEmbedder{dims: 8}
	p, err := NewPipeline(f, WithBatchSize(4))
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	entries, err := p.EmbedChunks(context.Background(), chunksOf(10))
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(entries))
	}
	if got := fmt.Sprint(f.batches); got != "[4 4 2]" {
		t.Errorf("expected batches [4 4 2], got %s", got)
	}
	if entries[3].ID != "msg#3" {
		t.Errorf("expected id msg#3, got %s", entries[3].ID)
	}
	if entries[3].MessageID() != "msg" || entries[3].Role() != model.RoleUser {
		t.Errorf("metadata not populated: %v", entries[3].Metadata)
	}
	if entries[3].Metadata[model.MetaContentHash] != HashText("chunk number 3") {
		t.Error("content hash missing")
	}
}

func TestEmbedChunks_CachesIdenticalText(t *testing.T) {
	f := &fakeEmbedder{dims: 4}
	p, _ := NewPipeline(f)
	ctx := context.Background()

	same := []model.Chunk{
		{ParentMessageID: "a", Content: "repeated text"},
		{ParentMessageID: "b", Content: "repeated text"},
	}
	if _, err := p.EmbedChunks(ctx, same); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := p.EmbedChunks(ctx, same[:1]); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if f.embedded != 1 {
		t.Errorf("expected a single embedding call for identical text, got %d", f.embedded)
	}
}

func TestEmbedChunks_DimensionMismatch(t *testing.T) {
	p, _ := NewPipeline(&fakeEmbedder{dims: 8, badDims: 5})
	_, err := p.EmbedChunks(context.Background(), chunksOf(1))
	if !errors.Is(err, model.ErrEmbedding) || !errors.Is(err, model.ErrDimensionMismatch) {
		t.Errorf("expected embedding dimension mismatch, got %v", err)
	}
}

func TestEmbedChunks_PropagatesFailure(t *testing.T) {
	boom := errors.New("service down")
	p, _ := NewPipeline(&fakeEmbedder{dims: 8, err: boom})
	_, err := p.EmbedChunks(context.Background(), chunksOf(2))
	if !errors.Is(err, model.ErrEmbedding) || !errors.Is(err, boom) {
		t.Errorf("expected wrapped failure, got %v", err)
	}
}

func TestEmbedQuery_Timeout(t *testing.T) {
	p, _ := NewPipeline(&fakeEmbedder{dims: 8, delay: time.Second}, WithTimeout(10*time.Millisecond))
	_, err := p.EmbedQuery(context.Background(), "slow")
	if !errors.Is(err, model.ErrTimeout) || !errors.Is(err, model.ErrEmbedding) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestEmbedChunks_Empty(t *testing.T) {
	p, _ := NewPipeline(&fakeEmbedder{dims: 8})
	entries, err := p.EmbedChunks(context.Background(), nil)
	if err != nil || entries != nil {
		t.Errorf("expected nil, nil; got %v, %v", entries, err)
	}
}
