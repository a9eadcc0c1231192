// Package tokens approximates token counts for budget accounting.
package tokens

import (
	"fmt"
	"math"
	"unicode"
	"unicode/utf8"

	"github.com/rcliao/context-window/internal/model"
)

const (
	DefaultCharsPerToken = 4.0
	DefaultOffset        = 0
)

// Counter estimates the token cost of a piece of text.
type Counter interface {
	Estimate(text string) int
}

// Estimator is the character-ratio heuristic: whitespace runs collapse to a
// single space, then ceil(runes / CharsPerToken) + Offset.
// It is deterministic and monotonic in the normalized length, not exact.
type Estimator struct {
	charsPerToken float64
	offset        int
}

// New creates an Estimator. charsPerToken must be positive and offset non-negative.
func New(charsPerToken float64, offset int) (*Estimator, error) {
	if charsPerToken <= 0 || math.IsNaN(charsPerToken) || math.IsInf(charsPerToken, 0) {
		return nil, fmt.Errorf("%w: chars per token must be positive, got %v", model.ErrInvalidConfig, charsPerToken)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: token offset must be non-negative, got %d", model.ErrInvalidConfig, offset)
	}
	return &Estimator{charsPerToken: charsPerToken, offset: offset}, nil
}

// Default returns the 4 chars/token estimator with no offset.
func Default() *Estimator {
	return &Estimator{charsPerToken: DefaultCharsPerToken, offset: DefaultOffset}
}

// Estimate returns the approximate token count of text.
func (e *Estimator) Estimate(text string) int {
	n := normalizedLen(text)
	if n == 0 {
		return e.offset
	}
	return int(math.Ceil(float64(n)/e.charsPerToken)) + e.offset
}

// Sum estimates the total cost of msgs.
func Sum(c Counter, msgs []model.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.Estimate(m.Content)
	}
	return total
}

// normalizedLen counts runes after collapsing every whitespace run to one space.
// Leading and trailing whitespace is collapsed but kept, so a prefix never
// normalizes longer than the whole string.
func normalizedLen(text string) int {
	n := 0
	inSpace := false
	for len(text) > 0 {
		r, size := utf8.DecodeRuneInString(text)
		text = text[size:]
		if unicode.IsSpace(r) {
			if inSpace {
				continue
			}
			inSpace = true
		} else {
			inSpace = false
		}
		n++
	}
	return n
}
