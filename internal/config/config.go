// Package config loads ctxwin settings from a TOML file with environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/rcliao/context-window/internal/chunker"
	"github.com/rcliao/context-window/internal/embedding"
	"github.com/rcliao/context-window/internal/model"
	"github.com/rcliao/context-window/internal/strategy"
	"github.com/rcliao/context-window/internal/tokens"
)

type TokensConfig struct {
	CharsPerToken float64 `toml:"chars_per_token"`
	Offset        int     `toml:"offset"`
}

type WindowConfig struct {
	Strategy         string `toml:"strategy"` // sliding | summarizing
	LookbackMessages int    `toml:"lookback_messages"`
	SummaryTokens    int    `toml:"summary_tokens"`
	SummaryGroup     int    `toml:"summary_group"`
	Summarizer       string `toml:"summarizer"` // extractive | llm
}

type ChunkerConfig struct {
	MaxChunkTokens    int    `toml:"max_chunk_tokens"`
	Strategy          string `toml:"strategy"`
	PreserveWords     bool   `toml:"preserve_words"`
	PreserveSentences bool   `toml:"preserve_sentences"`
}

type EmbeddingConfig struct {
	Provider       string `toml:"provider"` // ollama | openai | hash | "" (off)
	Model          string `toml:"model"`
	URL            string `toml:"url"`
	Dims           int    `toml:"dims"`
	BatchSize      int    `toml:"batch_size"`
	CacheSize      int    `toml:"cache_size"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type RecallConfig struct {
	Enabled   bool    `toml:"enabled"`
	TopK      int     `toml:"top_k"`
	MaxTokens int     `toml:"max_tokens"`
	MinScore  float64 `toml:"min_score"`
}

type StoreConfig struct {
	Backend            string `toml:"backend"` // sqlite | file | memory
	DBPath             string `toml:"db_path"`
	Dir                string `toml:"dir"`
	CallTimeoutSeconds int    `toml:"call_timeout_seconds"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type LLMConfig struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxFollowUps   int    `toml:"max_follow_ups"`

	// APIKey comes from OPENAI_API_KEY only and is never written to disk.
	APIKey string `toml:"-"`
}

type Config struct {
	Tokens    TokensConfig    `toml:"tokens"`
	Window    WindowConfig    `toml:"window"`
	Chunker   ChunkerConfig   `toml:"chunker"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Recall    RecallConfig    `toml:"recall"`
	Store     StoreConfig     `toml:"store"`
	Log       LogConfig       `toml:"log"`
	LLM       LLMConfig       `toml:"llm"`
}

const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"

	WindowSliding     = "sliding"
	WindowSummarizing = "summarizing"
)

func Default() Config {
	dataDir := DataDir()
	return Config{
		Tokens: TokensConfig{CharsPerToken: tokens.DefaultCharsPerToken, Offset: tokens.DefaultOffset},
		Window: WindowConfig{
			Strategy:         WindowSliding,
			LookbackMessages: strategy.DefaultLookbackMessages,
			SummaryTokens:    300,
			SummaryGroup:     strategy.DefaultSummaryGroup,
			Summarizer:       "extractive",
		},
		Chunker: ChunkerConfig{
			MaxChunkTokens:    chunker.DefaultMaxChunkTokens,
			Strategy:          string(chunker.SentenceBoundary),
			PreserveWords:     true,
			PreserveSentences: true,
		},
		Embedding: EmbeddingConfig{
			BatchSize:      16,
			CacheSize:      1024,
			TimeoutSeconds: 30,
		},
		Recall: RecallConfig{Enabled: true, TopK: 5},
		Store: StoreConfig{
			Backend:            BackendSQLite,
			DBPath:             filepath.Join(dataDir, "ctxwin.db"),
			Dir:                filepath.Join(dataDir, "sessions"),
			CallTimeoutSeconds: 60,
		},
		Log: LogConfig{Level: "warn", Format: "text"},
		LLM: LLMConfig{Model: "gpt-4o-mini", TimeoutSeconds: 30, MaxFollowUps: 3},
	}
}

// DataDir is ~/.ctxwin, or .ctxwin when the home directory is unknown.
func DataDir() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return ".ctxwin"
	}
	return filepath.Join(home, ".ctxwin")
}

// DefaultPath returns $CTXWIN_CONFIG or ~/.ctxwin/config.toml.
func DefaultPath() string {
	if env := os.Getenv("CTXWIN_CONFIG"); env != "" {
		return env
	}
	return filepath.Join(DataDir(), "config.toml")
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied and the result validated.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parse %s: %v", model.ErrInvalidConfig, path, err)
		}
	case os.IsNotExist(err):
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	cfg.Store.DBPath = expandPath(cfg.Store.DBPath)
	cfg.Store.Dir = expandPath(cfg.Store.Dir)
	return cfg, cfg.Validate()
}

// Write stores cfg at path, creating the directory.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides settings from CTXWIN_* variables, OPENAI_API_KEY and OLLAMA_HOST.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("CTXWIN_DB"); v != "" {
		c.Store.DBPath = v
	}
	if v := os.Getenv("CTXWIN_STORE"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("CTXWIN_EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("CTXWIN_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("CTXWIN_EMBED_URL"); v != "" {
		c.Embedding.URL = v
	}
	if v := os.Getenv("CTXWIN_EMBED_DIMS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: CTXWIN_EMBED_DIMS: %v", model.ErrInvalidConfig, err)
		}
		c.Embedding.Dims = n
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && c.Embedding.Provider == "ollama" && c.Embedding.URL == "" {
		c.Embedding.URL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("CTXWIN_LLM_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("CTXWIN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("CTXWIN_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	return nil
}

// Validate reports the first invalid setting as model.ErrInvalidConfig.
func (c Config) Validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{model.ErrInvalidConfig}, args...)...)
	}
	switch {
	case c.Tokens.CharsPerToken <= 0:
		return fail("tokens.chars_per_token must be positive, got %v", c.Tokens.CharsPerToken)
	case c.Tokens.Offset < 0:
		return fail("tokens.offset must be non-negative, got %d", c.Tokens.Offset)
	case c.Window.Strategy != WindowSliding && c.Window.Strategy != WindowSummarizing:
		return fail("window.strategy must be %q or %q, got %q", WindowSliding, WindowSummarizing, c.Window.Strategy)
	case c.Window.LookbackMessages < 0:
		return fail("window.lookback_messages must be non-negative, got %d", c.Window.LookbackMessages)
	case c.Window.SummaryTokens < 0 || c.Window.SummaryGroup < 0:
		return fail("window.summary_tokens and summary_group must be non-negative")
	case c.Window.Summarizer != "extractive" && c.Window.Summarizer != "llm":
		return fail("window.summarizer must be extractive or llm, got %q", c.Window.Summarizer)
	case c.Embedding.Provider != "" && c.Embedding.Dims < 0:
		return fail("embedding.dims must be positive, got %d", c.Embedding.Dims)
	case c.Embedding.BatchSize < 0 || c.Embedding.TimeoutSeconds < 0 || c.Embedding.CacheSize < 0:
		return fail("embedding batch_size, cache_size and timeout_seconds must be non-negative")
	case c.Recall.TopK < 0:
		return fail("recall.top_k must be non-negative, got %d", c.Recall.TopK)
	case c.Recall.MaxTokens < 0:
		return fail("recall.max_tokens must be non-negative, got %d", c.Recall.MaxTokens)
	case c.Store.Backend != BackendSQLite && c.Store.Backend != BackendFile && c.Store.Backend != BackendMemory:
		return fail("store.backend must be sqlite, file or memory, got %q", c.Store.Backend)
	case c.Store.CallTimeoutSeconds < 0:
		return fail("store.call_timeout_seconds must be non-negative")
	}
	if err := c.ChunkerOptions().Validate(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fail("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Counter builds the token estimator.
func (c Config) Counter() (*tokens.Estimator, error) {
	return tokens.New(c.Tokens.CharsPerToken, c.Tokens.Offset)
}

// ChunkerOptions converts the [chunker] section.
func (c Config) ChunkerOptions() chunker.Options {
	return chunker.Options{
		MaxChunkTokens:    c.Chunker.MaxChunkTokens,
		Strategy:          chunker.Strategy(c.Chunker.Strategy),
		PreserveWords:     c.Chunker.PreserveWords,
		PreserveSentences: c.Chunker.PreserveSentences,
	}
}

// Provider converts the [embedding] section.
func (c Config) Provider() embedding.ProviderConfig {
	return embedding.ProviderConfig{
		Provider: c.Embedding.Provider,
		Model:    c.Embedding.Model,
		URL:      c.Embedding.URL,
		APIKey:   c.LLM.APIKey,
		Dims:     c.Embedding.Dims,
	}
}

// PipelineOptions converts the batching, caching and timeout settings.
func (c Config) PipelineOptions() []embedding.PipelineOption {
	return []embedding.PipelineOption{
		embedding.WithBatchSize(c.Embedding.BatchSize),
		embedding.WithCacheSize(c.Embedding.CacheSize),
		embedding.WithTimeout(time.Duration(c.Embedding.TimeoutSeconds) * time.Second),
	}
}

// CallTimeout bounds each external collaborator call.
func (c Config) CallTimeout() time.Duration {
	return time.Duration(c.Store.CallTimeoutSeconds) * time.Second
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, fmt.Errorf("%w: log.level %q", model.ErrInvalidConfig, s)
	}
	return l, nil
}

func expandPath(path string) string {
	if rest, ok := strings.CutPrefix(path, "~"); ok {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, rest)
	}
	return path
}
