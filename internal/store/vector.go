package store

import (
	"context"
	"fmt"
	"reflect"
	"time"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"

	"github.com/rcliao/context-window/internal/index"
	"github.com/rcliao/context-window/internal/model"
)

// Vectors and metadata are stored as deterministic CBOR so identical
// entries always produce identical bytes.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("store: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("store: CBOR decoder initialization failed: " + err.Error())
	}
}

// SQLiteIndex is a vector index persisted in the vectors table, scoped to
// one session. Similarity is computed in Go over every stored entry,
// which is fine for conversation-sized collections.
type SQLiteIndex struct {
	store   *SQLiteStore
	session string
	dims    int
}

var _ index.Index = (*SQLiteIndex)(nil)

// Index returns the vector index of a session with the given dimensionality.
func (s *SQLiteStore) Index(session string, dims int) (*SQLiteIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: index dimensions must be positive, got %d", model.ErrInvalidConfig, dims)
	}
	return &SQLiteIndex{store: s, session: session, dims: dims}, nil
}

func (x *SQLiteIndex) Dims() int { return x.dims }

// Insert stores entries. Re-inserting an id replaces the entry and moves
// it to the end of insertion order.
func (x *SQLiteIndex) Insert(ctx context.Context, entries []model.VectorEntry) error {
	for _, e := range entries {
		if err := index.CheckDims(x.dims, e.Embedding, "entry "+e.ID); err != nil {
			return err
		}
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := x.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM vectors WHERE session_id = ?`, x.session).Scan(&seq); err != nil {
		return fmt.Errorf("read vector sequence: %w", err)
	}

	for _, e := range entries {
		emb, err := encMode.Marshal(e.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding %s: %w", e.ID, err)
		}
		var meta []byte
		if len(e.Metadata) > 0 {
			if meta, err = encMode.Marshal(e.Metadata); err != nil {
				return fmt.Errorf("encode metadata %s: %w", e.ID, err)
			}
		}
		seq++
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO vectors (session_id, id, seq, dims, embedding, content, meta, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			x.session, e.ID, seq, len(e.Embedding), emb, e.Content, meta, e.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert vector %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (x *SQLiteIndex) Query(ctx context.Context, vector []float32, k int) ([]index.Match, error) {
	if err := index.CheckDims(x.dims, vector, "query vector"); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []index.Match{}, nil
	}

	rows, err := x.store.db.QueryContext(ctx,
		`SELECT id, seq, dims, embedding, content, meta, created_at FROM vectors
		 WHERE session_id = ? ORDER BY seq`, x.session)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var candidates []index.Ranked
	for rows.Next() {
		var e model.VectorEntry
		var seq int64
		var dims int
		var emb, meta []byte
		var createdAt string
		if err := rows.Scan(&e.ID, &seq, &dims, &emb, &e.Content, &meta, &createdAt); err != nil {
			return nil, err
		}
		if dims != x.dims {
			return nil, fmt.Errorf("%w: stored entry %s has %d dimensions, index expects %d; reindex the session",
				model.ErrDimensionMismatch, e.ID, dims, x.dims)
		}
		if err := decMode.Unmarshal(emb, &e.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", e.ID, err)
		}
		if len(meta) > 0 {
			if err := decMode.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata %s: %w", e.ID, err)
			}
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		candidates = append(candidates, index.Ranked{Match: index.Match{Entry: e}, Seq: seq})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return index.Rank(vector, candidates, k), nil
}

func (x *SQLiteIndex) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := []any{x.session}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := x.store.db.ExecContext(ctx,
		`DELETE FROM vectors WHERE session_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// DeleteByMessageIDs removes entries whose id is a message id or starts
// with "<message id>#".
func (x *SQLiteIndex) DeleteByMessageIDs(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	tx, err := x.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range messageIDs {
		prefix := id + "#"
		_, err := tx.ExecContext(ctx,
			`DELETE FROM vectors WHERE session_id = ? AND (id = ? OR substr(id, 1, ?) = ?)`,
			x.session, id, utf8.RuneCountInString(prefix), prefix)
		if err != nil {
			return fmt.Errorf("delete vectors of %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (x *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := x.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vectors WHERE session_id = ?`, x.session).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}

func (x *SQLiteIndex) Clear(ctx context.Context) error {
	if _, err := x.store.db.ExecContext(ctx, `DELETE FROM vectors WHERE session_id = ?`, x.session); err != nil {
		return fmt.Errorf("clear vectors: %w", err)
	}
	return nil
}
