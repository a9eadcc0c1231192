package conversation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rcliao/context-window/internal/model"
	"github.com/rcliao/context-window/internal/tokens"
)

const (
	summaryHeading  = "## Summary of earlier conversation"
	recallHeading   = "## Recalled context"
	conversationHdr = "## Conversation"
)

// BuildPrompt assembles the prompt for budget tokens, recalling against
// the latest user message.
func (m *Manager) BuildPrompt(ctx context.Context, budget int) (*model.PromptPayload, error) {
	return m.BuildPromptWithQuery(ctx, budget, "")
}

// BuildPromptWithQuery is BuildPrompt with an explicit recall query.
// An empty conversation yields an empty payload, not an error.
func (m *Manager) BuildPromptWithQuery(ctx context.Context, budget int, query string) (*model.PromptPayload, error) {
	callCtx, cancel := m.callCtx(ctx)
	defer cancel()

	sel, err := m.memory.Select(callCtx, m.messages, budget, query)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	trace := sel.Trace
	payload := m.fitPrompt(budget, sel.Result.Summaries, sel.Recalled, sel.Result.Included, &trace)

	m.lastPrompt = payload.PromptText
	m.lastTokens = payload.EstimatedTokens
	m.lastStrategy = trace.Strategy
	m.logger.Debug("conversation: built prompt",
		"budget", trace.Budget,
		"included", trace.IncludedCount,
		"excluded", trace.ExcludedCount,
		"summaries", trace.SummaryCount,
		"recalled", trace.RecalledCount,
		"tokens", payload.EstimatedTokens,
	)
	return payload, nil
}

// fitPrompt renders the selection and, while the rendered text is over
// budget, drops the oldest included message, then the weakest recalled
// entry, then the oldest summary. Headings and role labels cost tokens the
// selection does not see, so the check runs on the final text.
func (m *Manager) fitPrompt(budget int, summaries []model.SummaryInfo, recalled []model.Recalled, included []model.Message, trace *model.PromptTrace) *model.PromptPayload {
	counter := m.memory.Counter()
	recalled = slices.Clone(recalled)
	dropped := 0

	text := renderPrompt(summaries, recalled, included)
	for text != "" && counter.Estimate(text) > budget {
		switch {
		case len(included) > 0:
			included = included[1:]
			trace.ExcludedCount++
		case len(recalled) > 0:
			weakest := 0
			for i, r := range recalled {
				if r.Score < recalled[weakest].Score {
					weakest = i
				}
			}
			recalled = slices.Delete(recalled, weakest, weakest+1)
		default:
			summaries = summaries[1:]
		}
		dropped++
		text = renderPrompt(summaries, recalled, included)
	}

	if dropped > 0 {
		trace.RenderTrimmed = dropped
		trace.IncludedCount = len(included)
		trace.IncludedTokens = tokens.Sum(counter, included)
		trace.RecalledCount = len(recalled)
		trace.RecalledTokens = 0
		for _, r := range recalled {
			trace.RecalledTokens += r.EstimatedTokens
		}
		trace.SummaryCount = len(summaries)
		trace.SummaryTokens = 0
		for _, s := range summaries {
			trace.SummaryTokens += s.TokenEstimateAfter
		}
		m.logger.Debug("conversation: trimmed rendered prompt to budget", "dropped", dropped, "budget", budget)
	}

	estimated := 0
	if text != "" {
		estimated = counter.Estimate(text)
	}
	if included == nil {
		included = []model.Message{}
	}
	return &model.PromptPayload{
		PromptText:       text,
		IncludedMessages: included,
		Summaries:        summaries,
		Recalled:         recalled,
		EstimatedTokens:  estimated,
		Trace:            trace,
	}
}

// renderPrompt lays out summaries, recalled context and the verbatim
// conversation as separate labeled sections. Empty sections are omitted.
func renderPrompt(summaries []model.SummaryInfo, recalled []model.Recalled, included []model.Message) string {
	var sections []string

	if len(summaries) > 0 {
		var b strings.Builder
		b.WriteString(summaryHeading)
		for _, s := range summaries {
			b.WriteString("\n- ")
			b.WriteString(strings.ReplaceAll(strings.TrimSpace(s.Summary), "\n", "\n  "))
		}
		sections = append(sections, b.String())
	}

	if len(recalled) > 0 {
		var b strings.Builder
		b.WriteString(recallHeading)
		for _, r := range recalled {
			role := r.Entry.Role()
			if role == "" {
				role = "unknown"
			}
			fmt.Fprintf(&b, "\n[%s %s] %s", role, r.Entry.Timestamp.UTC().Format(time.RFC3339), r.Entry.Content)
		}
		sections = append(sections, b.String())
	}

	if len(included) > 0 {
		sections = append(sections, conversationHdr+"\n"+renderConversation(included))
	}
	return strings.Join(sections, "\n\n")
}

func renderConversation(msgs []model.Message) string {
	lines := make([]string, len(msgs))
	for i, msg := range msgs {
		lines[i] = fmt.Sprintf("%s: %s", msg.Role, msg.Content)
	}
	return strings.Join(lines, "\n")
}

// Stats are aggregate counts for the session.
type Stats struct {
	SessionID       string             `json:"session_id"`
	TotalMessages   int                `json:"total_messages"`
	ByRole          map[model.Role]int `json:"by_role"`
	VectorCount     int                `json:"vector_count"`
	LastBuildTokens int                `json:"last_build_tokens"`
	LastStrategy    string             `json:"last_strategy,omitempty"`
	IndexFailures   int                `json:"index_failures"`
}

// Stats reports counts from the log and the index.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		SessionID:       m.sessionID,
		TotalMessages:   len(m.messages),
		ByRole:          map[model.Role]int{},
		LastBuildTokens: m.lastTokens,
		LastStrategy:    m.lastStrategy,
		IndexFailures:   m.indexFailures,
	}
	for _, msg := range m.messages {
		st.ByRole[msg.Role]++
	}
	if idx := m.memory.Index(); idx != nil {
		n, err := idx.Count(ctx)
		if err != nil {
			return st, fmt.Errorf("count vectors: %w", err)
		}
		st.VectorCount = n
	}
	return st, nil
}
