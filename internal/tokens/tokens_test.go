package tokens

import (
	"errors"
	"strings"
	"testing"

	"github.com/rcliao/context-window/internal/model"
)

func TestEstimate(t *testing.T) {
	e := Default()
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"one char", "a", 1},
		{"four chars", "abcd", 1},
		{"five chars", "abcde", 2},
		{"collapsed whitespace", "ab  \n\t cd", 2}, // "ab cd" = 5 runes
		{"multibyte runes", "héllo", 2},
		{"eighty chars", strings.Repeat("x", 80), 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Estimate(tt.text); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestEstimate_Offset(t *testing.T) {
	e, err := New(2, 3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if got := e.Estimate(""); got != 3 {
		t.Errorf("empty text should yield offset 3, got %d", got)
	}
	if got := e.Estimate("abc"); got != 5 {
		t.Errorf("expected ceil(3/2)+3 = 5, got %d", got)
	}
}

func TestEstimate_DeterministicAndMonotonic(t *testing.T) {
	e := Default()
	pieces := []string{"", " ", "hello", "  world  ", "\n\n", "a sentence. Another one!", "   ", "ünïcödé"}
	for _, s1 := range pieces {
		if e.Estimate(s1) != e.Estimate(s1) {
			t.Fatalf("non-deterministic estimate for %q", s1)
		}
		for _, s2 := range pieces {
			if e.Estimate(s1) > e.Estimate(s1+s2) {
				t.Errorf("Estimate(%q)=%d > Estimate(%q)=%d", s1, e.Estimate(s1), s1+s2, e.Estimate(s1+s2))
			}
		}
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		cpt    float64
		offset int
	}{
		{"zero ratio", 0, 0},
		{"negative ratio", -1, 0},
		{"negative offset", 4, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cpt, tt.offset)
			if !errors.Is(err, model.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSum(t *testing.T) {
	msgs := []model.Message{
		{Content: strings.Repeat("a", 8)},
		{Content: strings.Repeat("b", 4)},
	}
	if got := Sum(Default(), msgs); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}
