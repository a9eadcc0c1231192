package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rcliao/context-window/internal/chunker"
	"github.com/rcliao/context-window/internal/llm"
	"github.com/rcliao/context-window/internal/model"
	"github.com/rcliao/context-window/internal/tokens"
)

const DefaultSummaryGroup = 10

// Summarizer condenses a group of messages into a short text.
type Summarizer interface {
	Summarize(ctx context.Context, messages []model.Message) (string, error)
}

// SummarizingWindow runs a sliding window over the budget left after
// reserving SummaryTokens, then summarizes the excluded history in groups
// of GroupSize messages. The newest summaries that fit the reservation are
// kept; older groups stay excluded without a summary.
type SummarizingWindow struct {
	Window        SlidingWindow
	Summarizer    Summarizer
	SummaryTokens int
	GroupSize     int
	Logger        *slog.Logger
}

func (s *SummarizingWindow) Name() string { return "summarizing_window" }

func (s *SummarizingWindow) Apply(ctx context.Context, messages []model.Message, budget int, counter tokens.Counter) (*model.StrategyResult, error) {
	if counter == nil {
		counter = tokens.Default()
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reserve := min(max(s.SummaryTokens, 0), max(budget, 0))
	res, err := s.Window.Apply(ctx, messages, budget-reserve, counter)
	if err != nil {
		return nil, err
	}
	res.Name = s.Name()
	if s.Summarizer == nil || reserve == 0 || len(res.Excluded) == 0 {
		return res, nil
	}

	size := s.GroupSize
	if size <= 0 {
		size = DefaultSummaryGroup
	}
	var groups [][]model.Message
	for start := 0; start < len(res.Excluded); start += size {
		groups = append(groups, res.Excluded[start:min(start+size, len(res.Excluded))])
	}

	var summaries []model.SummaryInfo
	used := 0
	for g := len(groups) - 1; g >= 0; g-- {
		group := groups[g]
		text, err := s.Summarizer.Summarize(ctx, group)
		if err != nil {
			return nil, fmt.Errorf("summarize messages %s..%s: %w", group[0].ID, group[len(group)-1].ID, err)
		}
		info := model.SummaryInfo{
			ChunkID:             fmt.Sprintf("summary:%s..%s", group[0].ID, group[len(group)-1].ID),
			Summary:             text,
			TokenEstimateBefore: tokens.Sum(counter, group),
			TokenEstimateAfter:  counter.Estimate(text),
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if info.TokenEstimateAfter > info.TokenEstimateBefore {
			logger.Warn("summary larger than its source, dropping",
				"chunk_id", info.ChunkID, "before", info.TokenEstimateBefore, "after", info.TokenEstimateAfter)
			continue
		}
		if used+info.TokenEstimateAfter > reserve {
			break
		}
		used += info.TokenEstimateAfter
		summaries = append(summaries, info)
	}

	// collected newest first
	for i, j := 0, len(summaries)-1; i < j; i, j = i+1, j-1 {
		summaries[i], summaries[j] = summaries[j], summaries[i]
	}
	res.Summaries = summaries
	return res, nil
}

// ExtractiveSummarizer keeps the first sentence of each message, prefixed
// by its role, and trims trailing words until the result fits MaxTokens.
type ExtractiveSummarizer struct {
	MaxTokens int
	Counter   tokens.Counter
}

func (e *ExtractiveSummarizer) Summarize(_ context.Context, messages []model.Message) (string, error) {
	counter := e.Counter
	if counter == nil {
		counter = tokens.Default()
	}

	var lines []string
	for _, m := range messages {
		sentences := chunker.SplitSentences(strings.Join(strings.Fields(m.Content), " "))
		if len(sentences) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, sentences[0]))
	}
	out := strings.Join(lines, "\n")
	if e.MaxTokens <= 0 || counter.Estimate(out) <= e.MaxTokens {
		return out, nil
	}

	// drop trailing words until the text fits
	words := strings.Fields(out)
	for len(words) > 0 && counter.Estimate(strings.Join(words, " ")+" …") > e.MaxTokens {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return "", nil
	}
	return strings.Join(words, " ") + " …", nil
}

const summarySystemPrompt = "Summarize the following conversation excerpt in a few sentences. " +
	"Keep names, decisions and open questions. Reply with the summary only."

// LLMSummarizer asks a chat model to summarize the group.
type LLMSummarizer struct {
	Client    *llm.Client
	MaxTokens int
}

func (l *LLMSummarizer) Summarize(ctx context.Context, messages []model.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	maxTokens := l.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}
	out, err := l.Client.Complete(ctx, []llm.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: b.String()},
	}, maxTokens)
	if err != nil {
		return "", fmt.Errorf("llm summarize: %w", err)
	}
	return out, nil
}
