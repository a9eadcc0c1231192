// Package chunker splits oversized messages into token-bounded chunks for embedding.
package chunker

import (
	"fmt"
	"strings"

	"github.com/rcliao/context-window/internal/model"
	"github.com/rcliao/context-window/internal/tokens"
)

// Strategy selects the boundaries chunks are cut on.
type Strategy string

const (
	FixedSize         Strategy = "fixed_size"
	SentenceBoundary  Strategy = "sentence_boundary"
	ParagraphBoundary Strategy = "paragraph_boundary"
)

// ValidStrategies are the allowed chunking strategies.
var ValidStrategies = map[Strategy]bool{
	FixedSize:         true,
	SentenceBoundary:  true,
	ParagraphBoundary: true,
}

const DefaultMaxChunkTokens = 500

// Options configures chunking behavior.
type Options struct {
	MaxChunkTokens    int
	Strategy          Strategy
	PreserveWords     bool
	PreserveSentences bool
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		MaxChunkTokens:    DefaultMaxChunkTokens,
		Strategy:          SentenceBoundary,
		PreserveWords:     true,
		PreserveSentences: true,
	}
}

// Validate reports configuration errors as model.ErrInvalidConfig.
func (o Options) Validate() error {
	if o.MaxChunkTokens <= 0 {
		return fmt.Errorf("%w: max chunk tokens must be positive, got %d", model.ErrInvalidConfig, o.MaxChunkTokens)
	}
	if !ValidStrategies[o.Strategy] {
		return fmt.Errorf("%w: unknown chunk strategy %q", model.ErrInvalidConfig, o.Strategy)
	}
	return nil
}

// ChunkMessage splits msg into chunks of at most opts.MaxChunkTokens each.
// Content that fits yields exactly one chunk. Empty or whitespace-only
// content yields nil, so such a message is kept in the log but has no
// vectors and is never recalled.
// A unit that cannot be split without breaking a preserved boundary is
// emitted whole, so such a chunk may exceed the ceiling.
func ChunkMessage(msg model.Message, opts Options, counter tokens.Counter) []model.Chunk {
	if opts.MaxChunkTokens == 0 {
		opts.MaxChunkTokens = DefaultMaxChunkTokens
	}
	if opts.Strategy == "" {
		opts.Strategy = SentenceBoundary
	}
	if counter == nil {
		counter = tokens.Default()
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return nil
	}

	c := chunker{opts: opts, counter: counter}
	var pieces []string
	if c.fits(text) {
		pieces = []string{text}
	} else {
		pieces = c.split(text)
	}

	chunks := make([]model.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, model.Chunk{
			ParentMessageID: msg.ID,
			Role:            msg.Role,
			Content:         p,
			EstimatedTokens: counter.Estimate(p),
			SequenceIndex:   len(chunks),
			Timestamp:       msg.Timestamp,
		})
	}
	return chunks
}

type chunker struct {
	opts    Options
	counter tokens.Counter
}

// unit is a piece of text plus the separator used to join it to the previous unit.
type unit struct {
	text string
	sep  string
}

func (c chunker) fits(text string) bool {
	return c.counter.Estimate(text) <= c.opts.MaxChunkTokens
}

func (c chunker) split(text string) []string {
	switch c.opts.Strategy {
	case FixedSize:
		if c.opts.PreserveWords {
			return c.pack(wordUnits(text), c.oversizedWord)
		}
		return c.hardSplit(text)
	case ParagraphBoundary:
		var units []unit
		for _, p := range splitParagraphs(text) {
			units = append(units, unit{text: p, sep: "\n\n"})
		}
		return c.pack(units, c.oversizedParagraph)
	default:
		var units []unit
		for _, p := range splitParagraphs(text) {
			for i, s := range SplitSentences(p) {
				sep := " "
				if i == 0 {
					sep = "\n\n"
				}
				units = append(units, unit{text: s, sep: sep})
			}
		}
		return c.pack(units, c.oversizedSentence)
	}
}

// pack greedily joins consecutive units while the result stays under the ceiling.
// Units that are too large alone are handed to oversized.
func (c chunker) pack(units []unit, oversized func(string) []string) []string {
	var out []string
	cur := ""

	for _, u := range units {
		if cur != "" {
			if combined := cur + u.sep + u.text; c.fits(combined) {
				cur = combined
				continue
			}
			out = append(out, cur)
			cur = ""
		}
		if c.fits(u.text) {
			cur = u.text
			continue
		}
		out = append(out, oversized(u.text)...)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func (c chunker) oversizedParagraph(p string) []string {
	var units []unit
	for _, s := range SplitSentences(p) {
		units = append(units, unit{text: s, sep: " "})
	}
	return c.pack(units, c.oversizedSentence)
}

func (c chunker) oversizedSentence(s string) []string {
	switch {
	case c.opts.PreserveSentences:
		return []string{s}
	case c.opts.PreserveWords:
		return c.pack(wordUnits(s), c.oversizedWord)
	default:
		return c.hardSplit(s)
	}
}

func (c chunker) oversizedWord(w string) []string {
	if c.opts.PreserveWords {
		return []string{w}
	}
	return c.hardSplit(w)
}

// hardSplit cuts text on rune boundaries into the longest prefixes that fit.
func (c chunker) hardSplit(text string) []string {
	runes := []rune(text)
	var out []string

	for start := 0; start < len(runes); {
		// Largest n with runes[start:start+n] fitting; estimates are monotonic in length.
		lo, hi := 1, len(runes)-start
		n := 1
		for lo <= hi {
			mid := (lo + hi) / 2
			if c.fits(string(runes[start : start+mid])) {
				n = mid
				lo = mid + 1
			} else {
				hi = mid - 1
			}
		}
		if t := strings.TrimSpace(string(runes[start : start+n])); t != "" {
			out = append(out, t)
		}
		start += n
	}
	return out
}

func wordUnits(text string) []unit {
	words := strings.Fields(text)
	units := make([]unit, len(words))
	for i, w := range words {
		units[i] = unit{text: w, sep: " "}
	}
	return units
}

// splitParagraphs splits text on blank lines and before markdown headings.
func splitParagraphs(text string) []string {
	var paragraphs []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		if t := strings.TrimSpace(strings.Join(current, "\n")); t != "" {
			paragraphs = append(paragraphs, t)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			flush()
		}
		current = append(current, line)
	}
	flush()

	return paragraphs
}

const (
	terminators = ".!?"
	closers     = ".!?\"')]"
)

// SplitSentences splits a paragraph after terminal punctuation followed by whitespace.
func SplitSentences(p string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(p); i++ {
		if strings.IndexByte(terminators, p[i]) < 0 {
			continue
		}
		j := i + 1
		for j < len(p) && strings.IndexByte(closers, p[j]) >= 0 {
			j++
		}
		if j == len(p) {
			break
		}
		if !isSpace(p[j]) {
			i = j - 1
			continue
		}
		if s := strings.TrimSpace(p[start:j]); s != "" {
			sentences = append(sentences, s)
		}
		start = j
		i = j
	}
	if rest := strings.TrimSpace(p[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
