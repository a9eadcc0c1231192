// Package memory combines window selection with vector recall of older content.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/rcliao/context-window/internal/embedding"
	"github.com/rcliao/context-window/internal/index"
	"github.com/rcliao/context-window/internal/model"
	"github.com/rcliao/context-window/internal/strategy"
	"github.com/rcliao/context-window/internal/tokens"
)

const (
	DefaultTopK = 5

	// DefaultRecallShare is the fraction of the budget recall may use when
	// RecallOptions.MaxTokens is zero.
	DefaultRecallShare = 0.25

	// overfetch widens the index query so deduped hits can still fill TopK.
	overfetch = 4
)

// RecallOptions tunes vector recall.
type RecallOptions struct {
	TopK      int
	MaxTokens int
	MinScore  float64
}

// Selection is the outcome of one build: the strategy's partition plus
// recalled entries, with a trace of the decisions taken.
type Selection struct {
	Result   *model.StrategyResult
	Recalled []model.Recalled
	Trace    model.PromptTrace
}

// Manager runs the configured strategy and, when an index and embedding
// pipeline are present, recalls older content into the remaining budget.
type Manager struct {
	strategy strategy.Strategy
	counter  tokens.Counter
	index    index.Index
	pipeline *embedding.Pipeline
	recall   RecallOptions
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithCounter sets the token counter. Defaults to tokens.Default().
func WithCounter(c tokens.Counter) Option {
	return func(m *Manager) { m.counter = c }
}

// WithRecall enables recall against idx using p to embed queries.
func WithRecall(idx index.Index, p *embedding.Pipeline, opts RecallOptions) Option {
	return func(m *Manager) {
		m.index = idx
		m.pipeline = p
		m.recall = opts
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager. A nil strategy selects the default sliding window.
func New(s strategy.Strategy, opts ...Option) (*Manager, error) {
	if s == nil {
		s = strategy.NewSlidingWindow(strategy.DefaultLookbackMessages)
	}
	m := &Manager{strategy: s}
	for _, opt := range opts {
		opt(m)
	}
	if m.counter == nil {
		m.counter = tokens.Default()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.recall.TopK < 0 || m.recall.MaxTokens < 0 {
		return nil, fmt.Errorf("%w: recall top_k and max_tokens must be non-negative", model.ErrInvalidConfig)
	}
	if m.recall.TopK == 0 {
		m.recall.TopK = DefaultTopK
	}
	if m.index != nil && m.pipeline != nil && m.index.Dims() != m.pipeline.Dims() {
		return nil, fmt.Errorf("%w: index has %d dimensions, embedder %s has %d",
			model.ErrDimensionMismatch, m.index.Dims(), m.pipeline.Name(), m.pipeline.Dims())
	}
	return m, nil
}

// Counter returns the token counter used for budget accounting.
func (m *Manager) Counter() tokens.Counter { return m.counter }

// StrategyName returns the name of the configured strategy.
func (m *Manager) StrategyName() string { return m.strategy.Name() }

// Index returns the recall index, or nil.
func (m *Manager) Index() index.Index { return m.index }

// Pipeline returns the embedding pipeline, or nil.
func (m *Manager) Pipeline() *embedding.Pipeline { return m.pipeline }

// RecallEnabled reports whether both an index and a pipeline are configured.
func (m *Manager) RecallEnabled() bool { return m.index != nil && m.pipeline != nil }

// Select partitions messages under budget and recalls additional content.
// query overrides the recall query; empty means the latest user message.
func (m *Manager) Select(ctx context.Context, messages []model.Message, budget int, query string) (*Selection, error) {
	budget = max(budget, 0)

	res, err := m.strategy.Apply(ctx, messages, budget, m.counter)
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", m.strategy.Name(), err)
	}

	sel := &Selection{
		Result: res,
		Trace: model.PromptTrace{
			Strategy:       res.Name,
			Budget:         budget,
			IncludedCount:  len(res.Included),
			ExcludedCount:  len(res.Excluded),
			SummaryCount:   len(res.Summaries),
			IncludedTokens: tokens.Sum(m.counter, res.Included),
		},
	}
	for _, s := range res.Summaries {
		sel.Trace.SummaryTokens += s.TokenEstimateAfter
	}

	if !m.RecallEnabled() {
		sel.Trace.RecallSkipped = "not configured"
		return sel, nil
	}

	if query == "" {
		query = latestUserContent(messages)
	}
	if query == "" {
		sel.Trace.RecallSkipped = "no query"
		return sel, nil
	}
	sel.Trace.RecallQuery = query

	remaining := budget - sel.Trace.IncludedTokens - sel.Trace.SummaryTokens
	allowance := m.recall.MaxTokens
	if allowance == 0 {
		allowance = int(float64(budget) * DefaultRecallShare)
	}
	allowance = min(allowance, remaining)
	if allowance <= 0 {
		sel.Trace.RecallSkipped = "no budget"
		return sel, nil
	}

	recalled, err := m.Recall(ctx, query, m.recall.TopK*overfetch)
	if err != nil {
		return nil, err
	}

	included := make(map[string]bool, len(res.Included))
	for _, msg := range res.Included {
		included[msg.ID] = true
	}
	used := 0
	for _, r := range recalled {
		if len(sel.Recalled) == m.recall.TopK {
			break
		}
		if r.Score < m.recall.MinScore || included[r.Entry.MessageID()] {
			continue
		}
		if used+r.EstimatedTokens > allowance {
			continue
		}
		used += r.EstimatedTokens
		sel.Recalled = append(sel.Recalled, r)
	}

	slices.SortStableFunc(sel.Recalled, func(a, b model.Recalled) int {
		if c := a.Entry.Timestamp.Compare(b.Entry.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.Entry.ID, b.Entry.ID)
	})
	sel.Trace.RecalledCount = len(sel.Recalled)
	sel.Trace.RecalledTokens = used

	m.logger.Debug("memory: recall",
		"query_len", len(query),
		"candidates", len(recalled),
		"recalled", len(sel.Recalled),
		"allowance", allowance,
	)
	return sel, nil
}

// Recall embeds query and returns up to k index hits by descending score,
// without dedupe or budgeting. It returns nil when recall is not configured.
func (m *Manager) Recall(ctx context.Context, query string, k int) ([]model.Recalled, error) {
	if !m.RecallEnabled() || k <= 0 {
		return nil, nil
	}
	vec, err := m.pipeline.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed recall query: %w", err)
	}
	matches, err := m.index.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	out := make([]model.Recalled, len(matches))
	for i, match := range matches {
		out[i] = model.Recalled{
			Entry:           match.Entry,
			Score:           match.Score,
			EstimatedTokens: m.counter.Estimate(match.Entry.Content),
		}
	}
	return out, nil
}

func latestUserContent(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
