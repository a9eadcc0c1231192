package embedding

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

const DefaultHashDims = 256

// HashEmbedder is an offline embedder using signed feature hashing of
// lowercased word unigrams and bigrams. Texts sharing vocabulary land close
// together; it needs no network and is fully deterministic.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder. dims of 0 selects DefaultHashDims.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDims
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	v := make(Vector, e.dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for i, w := range words {
		e.add(v, w, 1)
		if i > 0 {
			e.add(v, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
	}
	return v, nil
}

func (e *HashEmbedder) add(v Vector, feature string, weight float32) {
	h := blake3.Sum256([]byte(feature))
	idx := binary.LittleEndian.Uint32(h[:4]) % uint32(e.dims)
	if h[4]&1 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) Dims() int    { return e.dims }
func (e *HashEmbedder) Name() string { return "hash" }

// HashText returns the hex blake3 digest of text, used as a content key.
func HashText(text string) string {
	h := blake3.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
