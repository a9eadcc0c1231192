// Package strategy decides which messages of a conversation enter the prompt.
package strategy

import (
	"context"

	"github.com/rcliao/context-window/internal/model"
	"github.com/rcliao/context-window/internal/tokens"
)

// DefaultLookbackMessages caps how many recent messages a window includes.
const DefaultLookbackMessages = 50

// Strategy partitions a chronological message sequence under a token budget.
// Implementations must not modify messages.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, messages []model.Message, budget int, counter tokens.Counter) (*model.StrategyResult, error)
}

// SlidingWindow keeps the newest messages that fit the budget.
// The zero value has LookbackMessages 0 and therefore includes nothing;
// use NewSlidingWindow for the default cap.
type SlidingWindow struct {
	LookbackMessages int
}

// NewSlidingWindow returns a window with the given lookback cap.
// A negative lookback selects DefaultLookbackMessages.
func NewSlidingWindow(lookback int) *SlidingWindow {
	if lookback < 0 {
		lookback = DefaultLookbackMessages
	}
	return &SlidingWindow{LookbackMessages: lookback}
}

func (w *SlidingWindow) Name() string { return "sliding_window" }

// Apply scans newest to oldest and includes each message whose estimate
// still fits the remaining budget, up to LookbackMessages. Scanning
// continues past an exclusion, so a short older message may still fit
// after a long newer one was dropped. A message is never truncated.
func (w *SlidingWindow) Apply(ctx context.Context, messages []model.Message, budget int, counter tokens.Counter) (*model.StrategyResult, error) {
	if counter == nil {
		counter = tokens.Default()
	}
	res := &model.StrategyResult{
		Name:     w.Name(),
		Included: []model.Message{},
		Excluded: []model.Message{},
	}

	keep := make([]bool, len(messages))
	if budget > 0 {
		used, count := 0, 0
		for i := len(messages) - 1; i >= 0 && count < w.LookbackMessages; i-- {
			cost := counter.Estimate(messages[i].Content)
			if used+cost > budget {
				continue
			}
			keep[i] = true
			used += cost
			count++
		}
	}

	for i, m := range messages {
		if keep[i] {
			res.Included = append(res.Included, m)
		} else {
			res.Excluded = append(res.Excluded, m)
		}
	}
	return res, nil
}
