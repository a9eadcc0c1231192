package llm

import (
	"context"
	"regexp"
	"strings"
)

// listMarker matches a bullet or "1." / "2)" prefix followed by whitespace.
var listMarker = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)

const followUpSystemPrompt = "Suggest up to 3 short follow-up questions the user might ask next, given the conversation context. " +
	"Return one question per line with no numbering."

// FollowUps generates follow-up questions from an assembled prompt context.
type FollowUps struct {
	Client *Client
	Max    int
}

// Generate asks the model for follow-up questions, one per line.
func (f *FollowUps) Generate(ctx context.Context, promptContext string) ([]string, error) {
	if strings.TrimSpace(promptContext) == "" {
		return []string{}, nil
	}
	out, err := f.Client.Complete(ctx, []Message{
		{Role: "system", Content: followUpSystemPrompt},
		{Role: "user", Content: promptContext},
	}, 200)
	if err != nil {
		return nil, err
	}
	return ParseLines(out, f.Max), nil
}

// ParseLines splits model output into non-empty lines, stripping list markers.
// max <= 0 keeps every line.
func ParseLines(out string, max int) []string {
	questions := []string{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(strings.TrimSpace(line), ""))
		if line == "" {
			continue
		}
		questions = append(questions, line)
		if max > 0 && len(questions) == max {
			break
		}
	}
	return questions
}
