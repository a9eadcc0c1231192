package store

import (
	"context"
	"testing"

	"github.com/rcliao/context-window/internal/model"
)

func TestSearch_Basic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Session("a").SaveMessages(ctx, []model.Message{
		{ID: "1", Role: model.RoleUser, Content: "Go is a compiled language with goroutines", Timestamp: t0},
		{ID: "2", Role: model.RoleAssistant, Content: "Python is an interpreted language", Timestamp: t0},
	})
	s.Session("b").SaveMessages(ctx, []model.Message{
		{ID: "3", Role: model.RoleUser, Content: "Rust has a borrow checker and is a compiled language", Timestamp: t0},
	})

	results, err := s.Search(ctx, SearchParams{Query: "language"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	results, err = s.Search(ctx, SearchParams{Session: "a", Query: "compiled language"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "1" || results[0].Session != "a" {
		t.Fatalf("expected message 1 only, got %+v", results)
	}
	if results[0].Snippet == "" {
		t.Error("expected a snippet")
	}

	results, _ = s.Search(ctx, SearchParams{Query: "haskell"})
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestSearch_FollowsEditsAndDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := s.Session("a")

	msg := model.Message{ID: "1", Role: model.RoleUser, Content: "original wording", Timestamp: t0}
	p.SaveMessages(ctx, []model.Message{msg})
	p.SaveMessages(ctx, []model.Message{msg.With("replacement text", nil)})

	if r, _ := s.Search(ctx, SearchParams{Query: "original"}); len(r) != 0 {
		t.Errorf("stale content still indexed: %+v", r)
	}
	if r, _ := s.Search(ctx, SearchParams{Query: "replacement"}); len(r) != 1 {
		t.Errorf("edited content not indexed")
	}

	p.DeleteMessages(ctx, []string{"1"})
	if r, _ := s.Search(ctx, SearchParams{Query: "replacement"}); len(r) != 0 {
		t.Errorf("deleted message still indexed")
	}
}

func TestSearch_QuotesSyntax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Session("a").SaveMessages(ctx, []model.Message{
		{ID: "1", Role: model.RoleUser, Content: "what about AND OR NOT operators", Timestamp: t0},
	})

	for _, q := range []string{`AND`, `"unbalanced`, `col:on`, `a*`} {
		if _, err := s.Search(ctx, SearchParams{Query: q}); err != nil {
			t.Errorf("query %q: %v", q, err)
		}
	}
	if r, _ := s.Search(ctx, SearchParams{Query: "   "}); r != nil {
		t.Errorf("blank query should return nothing, got %+v", r)
	}
}
