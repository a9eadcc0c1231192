package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/rcliao/context-window/internal/model"
	"github.com/rcliao/context-window/internal/tokens"
)

func msg(content string) model.Message {
	return model.Message{ID: "m1", Role: model.RoleUser, Content: content}
}

func joinedWords(chunks []model.Chunk) []string {
	var words []string
	for _, c := range chunks {
		words = append(words, strings.Fields(c.Content)...)
	}
	return words
}

func TestChunk_EmptyInput(t *testing.T) {
	result := ChunkMessage(msg("  \n "), DefaultOptions(), nil)
	if result != nil {
		t.Errorf("expected nil, got %v", result)
	}
}

func TestChunk_ShortContent(t *testing.T) {
	text := "This is a short message."
	result := ChunkMessage(msg(text), DefaultOptions(), nil)
	if len(result) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(result))
	}
	if result[0].Content != text {
		t.Errorf("expected %q, got %q", text, result[0].Content)
	}
	if result[0].ParentMessageID != "m1" || result[0].SequenceIndex != 0 {
		t.Errorf("unexpected chunk identity: %+v", result[0])
	}
	if result[0].EstimatedTokens != tokens.Default().Estimate(text) {
		t.Errorf("unexpected token estimate %d", result[0].EstimatedTokens)
	}
}

func TestChunk_LongMessageRespectsCeiling(t *testing.T) {
	// ~5000 chars of ordinary sentences
	text := strings.Repeat("The quick brown fox jumps over the lazy dog again. ", 100)
	opts := DefaultOptions()
	opts.MaxChunkTokens = 500

	result := ChunkMessage(msg(text), opts, nil)
	if len(result) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(result))
	}
	for i, c := range result {
		if c.EstimatedTokens > 500 {
			t.Errorf("chunk %d has %d tokens, over ceiling", i, c.EstimatedTokens)
		}
		if c.SequenceIndex != i {
			t.Errorf("chunk %d has sequence index %d", i, c.SequenceIndex)
		}
	}
}

func TestChunk_RoundTripKeepsAllContent(t *testing.T) {
	para := strings.Repeat("This is a sentence! Is it? Yes. ", 15)
	text := "# Heading\n\n" + para + "\n\n" + para + "\n" + para

	for _, strategy := range []Strategy{SentenceBoundary, ParagraphBoundary, FixedSize} {
		t.Run(string(strategy), func(t *testing.T) {
			opts := DefaultOptions()
			opts.Strategy = strategy
			opts.MaxChunkTokens = 40

			result := ChunkMessage(msg(text), opts, nil)
			got := strings.Join(joinedWords(result), " ")
			want := strings.Join(strings.Fields(text), " ")
			if got != want {
				t.Errorf("round trip mismatch:\ngot:  %q\nwant: %q", got, want)
			}
		})
	}
}

func TestChunk_OversizedSentenceKeptWhole(t *testing.T) {
	long := strings.Repeat("word ", 60) + "end."
	text := "Short one. " + long + " Another short."
	opts := Options{MaxChunkTokens: 20, Strategy: SentenceBoundary, PreserveWords: true, PreserveSentences: true}

	result := ChunkMessage(msg(text), opts, nil)
	found := false
	for _, c := range result {
		if c.Content == strings.TrimSpace(long) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the oversized sentence as its own chunk, got %v", result)
	}
	if got := strings.Join(joinedWords(result), " "); got != strings.Join(strings.Fields(text), " ") {
		t.Errorf("oversized sentence dropped content: %q", got)
	}
}

func TestChunk_HardSplitWhenNothingPreserved(t *testing.T) {
	text := strings.Repeat("abcdefghij", 50) + ". Tail."
	opts := Options{MaxChunkTokens: 10, Strategy: SentenceBoundary}

	result := ChunkMessage(msg(text), opts, nil)
	for i, c := range result {
		if c.EstimatedTokens > 10 {
			t.Errorf("chunk %d has %d tokens, hard split should respect ceiling", i, c.EstimatedTokens)
		}
	}
	var b strings.Builder
	for _, c := range result {
		b.WriteString(strings.ReplaceAll(c.Content, " ", ""))
	}
	if b.String() != strings.ReplaceAll(text, " ", "") {
		t.Errorf("hard split lost characters")
	}
}

func TestChunk_FixedSizePreservesWords(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 40)
	opts := Options{MaxChunkTokens: 12, Strategy: FixedSize, PreserveWords: true}

	result := ChunkMessage(msg(text), opts, nil)
	if len(result) < 2 {
		t.Fatalf("expected several chunks, got %d", len(result))
	}
	valid := map[string]bool{"alpha": true, "beta": true, "gamma": true, "delta": true}
	for _, c := range result {
		for _, w := range strings.Fields(c.Content) {
			if !valid[w] {
				t.Errorf("word split inside chunk: %q", w)
			}
		}
	}
}

func TestChunk_ParagraphBoundary(t *testing.T) {
	para := strings.Repeat("Some content filling space. ", 5) // ~140 chars, 35 tokens
	text := para + "\n\n" + para + "\n\n" + para
	opts := Options{MaxChunkTokens: 40, Strategy: ParagraphBoundary, PreserveWords: true, PreserveSentences: true}

	result := ChunkMessage(msg(text), opts, nil)
	if len(result) != 3 {
		t.Fatalf("expected one chunk per paragraph, got %d", len(result))
	}
	for _, c := range result {
		if c.Content != strings.TrimSpace(para) {
			t.Errorf("unexpected paragraph chunk %q", c.Content)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"One. Two! Three?", []string{"One.", "Two!", "Three?"}},
		{"Version 1.2 is out. Done", []string{"Version 1.2 is out.", "Done"}},
		{`He said "hi." Then left.`, []string{`He said "hi."`, "Then left."}},
		{"Wait... what?", []string{"Wait...", "what?"}},
		{"no terminator", []string{"no terminator"}},
	}
	for _, tt := range tests {
		got := SplitSentences(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitParagraphs_Headings(t *testing.T) {
	text := "# A\nintro\n# B\nbody\n\nnext"
	got := splitParagraphs(text)
	want := []string{"# A\nintro", "# B\nbody", "next"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("splitParagraphs = %q, want %q", got, want)
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Errorf("default options invalid: %v", err)
	}
	bad := []Options{
		{MaxChunkTokens: 0, Strategy: FixedSize},
		{MaxChunkTokens: 10, Strategy: "words"},
	}
	for _, o := range bad {
		if err := o.Validate(); !errors.Is(err, model.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig for %+v, got %v", o, err)
		}
	}
}
