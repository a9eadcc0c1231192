package index

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rcliao/context-window/internal/model"
)

func entry(id string, v ...float32) model.VectorEntry {
	return model.VectorEntry{ID: id, Embedding: v, Content: "content " + id}
}

func newTestIndex(t *testing.T) *MemoryIndex {
	t.Helper()
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	return idx
}

func TestNewMemoryIndex_InvalidDims(t *testing.T) {
	if _, err := NewMemoryIndex(0); !errors.Is(err, model.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestQuery_SortedBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	idx.Insert(ctx, []model.VectorEntry{
		entry("far", 0, 0, 1),
		entry("near", 1, 0.1, 0),
		entry("mid", 1, 1, 0),
	})

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected all 3 entries when k exceeds count, got %d", len(matches))
	}
	want := []string{"near", "mid", "far"}
	for i, m := range matches {
		if m.Entry.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], m.Entry.ID)
		}
		if i > 0 && matches[i-1].Score < m.Score {
			t.Errorf("scores not descending at %d", i)
		}
	}
}

func TestQuery_OwnEmbeddingFirst(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	idx.Insert(ctx, []model.VectorEntry{
		entry("a", 0.2, 0.9, 0.1),
		entry("b", 0.7, 0.1, 0.7),
	})

	matches, _ := idx.Query(ctx, []float32{0.7, 0.1, 0.7}, 1)
	if len(matches) != 1 || matches[0].Entry.ID != "b" {
		t.Fatalf("expected b first, got %v", matches)
	}
	if math.Abs(matches[0].Score-1.0) > 1e-6 {
		t.Errorf("expected similarity ~1.0, got %f", matches[0].Score)
	}
}

func TestQuery_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	idx.Insert(ctx, []model.VectorEntry{entry("first", 1, 0, 0)})
	idx.Insert(ctx, []model.VectorEntry{entry("second", 2, 0, 0)})
	idx.Insert(ctx, []model.VectorEntry{entry("third", 3, 0, 0)})

	for i := 0; i < 5; i++ {
		matches, _ := idx.Query(ctx, []float32{1, 0, 0}, 3)
		if matches[0].Entry.ID != "first" || matches[1].Entry.ID != "second" || matches[2].Entry.ID != "third" {
			t.Fatalf("tie order not stable: %v", matches)
		}
	}
}

func TestDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	err := idx.Insert(ctx, []model.VectorEntry{entry("ok", 1, 0, 0), entry("bad", 1, 0)})
	if !errors.Is(err, model.ErrDimensionMismatch) {
		t.Errorf("insert: expected ErrDimensionMismatch, got %v", err)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Errorf("a rejected batch must not be partially stored, count=%d", n)
	}

	if _, err := idx.Query(ctx, []float32{1, 0}, 1); !errors.Is(err, model.ErrDimensionMismatch) {
		t.Errorf("query: expected ErrDimensionMismatch, got %v", err)
	}
}

func TestDeleteCountClear(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	idx.Insert(ctx, []model.VectorEntry{entry("a", 1, 0, 0), entry("b", 0, 1, 0), entry("c", 0, 0, 1)})

	if n, _ := idx.Count(ctx); n != 3 {
		t.Fatalf("expected 3, got %d", n)
	}
	idx.DeleteByIDs(ctx, []string{"a", "missing"})
	if n, _ := idx.Count(ctx); n != 2 {
		t.Errorf("expected 2 after delete, got %d", n)
	}
	idx.Clear(ctx)
	if n, _ := idx.Count(ctx); n != 0 {
		t.Errorf("expected 0 after clear, got %d", n)
	}
}

func TestInsert_ReplacesExistingID(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	idx.Insert(ctx, []model.VectorEntry{entry("a", 1, 0, 0)})
	idx.Insert(ctx, []model.VectorEntry{entry("a", 0, 1, 0)})

	if n, _ := idx.Count(ctx); n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}
	matches, _ := idx.Query(ctx, []float32{0, 1, 0}, 1)
	if matches[0].Score < 0.999 {
		t.Errorf("expected replaced embedding, got score %f", matches[0].Score)
	}
}

func TestQuery_ZeroK(t *testing.T) {
	idx := newTestIndex(t)
	idx.Insert(context.Background(), []model.VectorEntry{entry("a", 1, 0, 0)})
	matches, err := idx.Query(context.Background(), []float32{1, 0, 0}, 0)
	if err != nil || len(matches) != 0 {
		t.Errorf("expected empty result, got %v %v", matches, err)
	}
}

func TestDeleteByMessageIDs(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)
	idx.Insert(ctx, []model.VectorEntry{
		entry("m1#0", 1, 0, 0),
		entry("m1#1", 0, 1, 0),
		entry("m1#7", 0, 0, 1),
		entry("m10#0", 1, 1, 0),
		entry("m2#0", 0, 1, 1),
	})

	if err := idx.DeleteByMessageIDs(ctx, []string{"m1", "missing"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := idx.Count(ctx); n != 2 {
		t.Fatalf("expected 2 entries left, got %d", n)
	}
	matches, _ := idx.Query(ctx, []float32{1, 1, 1}, 10)
	for _, m := range matches {
		if m.Entry.MessageID() == "m1" {
			t.Errorf("entry %s of a deleted message is still stored", m.Entry.ID)
		}
	}
}
