package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rcliao/context-window/internal/config"
	"github.com/rcliao/context-window/internal/conversation"
	"github.com/rcliao/context-window/internal/embedding"
	"github.com/rcliao/context-window/internal/index"
	"github.com/rcliao/context-window/internal/llm"
	"github.com/rcliao/context-window/internal/memory"
	"github.com/rcliao/context-window/internal/store"
	"github.com/rcliao/context-window/internal/strategy"
	"github.com/rcliao/context-window/internal/tokens"
)

// app is one opened session with its store, index and managers.
type app struct {
	cfg      config.Config
	sessions store.Sessions // nil for the memory backend
	sqlite   *store.SQLiteStore
	conv     *conversation.Manager

	// volatileIndex is set when vectors live only in process memory and
	// must be rebuilt from the log before recall.
	volatileIndex bool
}

func (a *app) Close() error {
	if a.sessions == nil {
		return nil
	}
	return a.sessions.Close()
}

// openSessions opens the configured session backend.
func openSessions(c config.Config) (store.Sessions, *store.SQLiteStore, error) {
	switch c.Store.Backend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(c.Store.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendFile:
		f, err := store.NewFileStore(c.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return f, nil, nil
	default:
		return nil, nil, nil
	}
}

// openSQLite opens the sqlite store for commands that need SQL features.
func openSQLite() (*store.SQLiteStore, error) {
	if cfg.Store.Backend != config.BackendSQLite {
		return nil, fmt.Errorf("needs the sqlite backend, configured %q", cfg.Store.Backend)
	}
	return store.NewSQLiteStore(cfg.Store.DBPath)
}

// buildStrategy picks the window strategy from the [window] section.
func buildStrategy(c config.Config, counter tokens.Counter, logger *slog.Logger) strategy.Strategy {
	window := strategy.NewSlidingWindow(c.Window.LookbackMessages)
	if c.Window.Strategy != config.WindowSummarizing {
		return window
	}

	var summarizer strategy.Summarizer = &strategy.ExtractiveSummarizer{
		MaxTokens: c.Window.SummaryTokens,
		Counter:   counter,
	}
	if c.Window.Summarizer == "llm" {
		summarizer = &strategy.LLMSummarizer{Client: newLLMClient(c)}
	}
	return &strategy.SummarizingWindow{
		Window:        *window,
		Summarizer:    summarizer,
		SummaryTokens: c.Window.SummaryTokens,
		GroupSize:     c.Window.SummaryGroup,
		Logger:        logger,
	}
}

func newLLMClient(c config.Config) *llm.Client {
	return llm.New(llm.Config{
		APIKey:  c.LLM.APIKey,
		BaseURL: c.LLM.BaseURL,
		Model:   c.LLM.Model,
		Timeout: time.Duration(c.LLM.TimeoutSeconds) * time.Second,
	})
}

// openApp wires the stack for the current session and loads its log.
func openApp(ctx context.Context) (*app, error) {
	return newApp(ctx, cfg, getSession())
}

func newApp(ctx context.Context, c config.Config, session string) (*app, error) {
	logger := slog.Default()

	counter, err := c.Counter()
	if err != nil {
		return nil, err
	}

	sessions, sqlite, err := openSessions(c)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{cfg: c, sessions: sessions, sqlite: sqlite}

	memOpts := []memory.Option{
		memory.WithCounter(counter),
		memory.WithLogger(logger),
	}
	if a.recallEnabled() {
		idx, pipeline, err := a.buildRecall(session, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		memOpts = append(memOpts, memory.WithRecall(idx, pipeline, memory.RecallOptions{
			TopK:      c.Recall.TopK,
			MaxTokens: c.Recall.MaxTokens,
			MinScore:  c.Recall.MinScore,
		}))
	}

	mem, err := memory.New(buildStrategy(c, counter, logger), memOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	convOpts := []conversation.Option{
		conversation.WithSessionID(session),
		conversation.WithChunking(c.ChunkerOptions()),
		conversation.WithCallTimeout(c.CallTimeout()),
		conversation.WithLogger(logger),
	}
	if sessions != nil {
		convOpts = append(convOpts, conversation.WithPersistence(sessions.Session(session)))
	}
	if c.LLM.APIKey != "" {
		convOpts = append(convOpts, conversation.WithFollowUps(&llm.FollowUps{
			Client: newLLMClient(c),
			Max:    c.LLM.MaxFollowUps,
		}))
	}

	conv, err := conversation.New(mem, convOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := conv.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.conv = conv
	return a, nil
}

func (a *app) recallEnabled() bool {
	return a.cfg.Recall.Enabled && a.cfg.Embedding.Provider != ""
}

func (a *app) buildRecall(session string, logger *slog.Logger) (index.Index, *embedding.Pipeline, error) {
	embedder, err := embedding.New(a.cfg.Provider())
	if err != nil {
		return nil, nil, err
	}
	pipeline, err := embedding.NewPipeline(embedder, append(a.cfg.PipelineOptions(), embedding.WithLogger(logger))...)
	if err != nil {
		return nil, nil, err
	}

	if a.sqlite != nil {
		idx, err := a.sqlite.Index(session, pipeline.Dims())
		if err != nil {
			return nil, nil, err
		}
		return idx, pipeline, nil
	}
	idx, err := index.NewMemoryIndex(pipeline.Dims())
	if err != nil {
		return nil, nil, err
	}
	a.volatileIndex = true
	return idx, pipeline, nil
}

// warmIndex rebuilds an in-process index from the loaded log.
func (a *app) warmIndex(ctx context.Context) error {
	if !a.volatileIndex || len(a.conv.Messages()) == 0 {
		return nil
	}
	_, err := a.conv.Reindex(ctx)
	return err
}
