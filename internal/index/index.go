// Package index defines the vector index contract and an in-memory implementation.
package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/rcliao/context-window/internal/embedding"
	"github.com/rcliao/context-window/internal/model"
)

// Match is a query hit with its cosine similarity to the query vector.
type Match struct {
	Entry model.VectorEntry `json:"entry"`
	Score float64           `json:"score"`
}

// Index stores vector entries of one fixed dimensionality and answers
// nearest-neighbor queries by cosine similarity.
type Index interface {
	// Dims is the length every stored and queried vector must have.
	Dims() int

	// Insert adds entries. An entry whose id already exists replaces it.
	Insert(ctx context.Context, entries []model.VectorEntry) error

	// Query returns up to k entries by descending similarity; ties keep insertion order.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)

	// DeleteByIDs removes entries; unknown ids are ignored.
	DeleteByIDs(ctx context.Context, ids []string) error

	// DeleteByMessageIDs removes every entry derived from the given messages,
	// whatever chunking produced them.
	DeleteByMessageIDs(ctx context.Context, messageIDs []string) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Clear removes every entry.
	Clear(ctx context.Context) error
}

// CheckDims returns model.ErrDimensionMismatch when v does not have dims elements.
func CheckDims(dims int, v []float32, what string) error {
	if len(v) != dims {
		return fmt.Errorf("%w: %s has length %d, index expects %d", model.ErrDimensionMismatch, what, len(v), dims)
	}
	return nil
}

// Ranked is a scoring candidate: seq is the insertion order used to break ties.
type Ranked struct {
	Match
	Seq int64
}

// Rank scores candidates against query and returns the top k.
// Implementations share it so ordering rules stay identical.
func Rank(query []float32, candidates []Ranked, k int) []Match {
	for i := range candidates {
		candidates[i].Score = embedding.CosineSimilarity(query, candidates[i].Entry.Embedding)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Seq < candidates[j].Seq
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]Match, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].Match
	}
	return out
}
