package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rcliao/context-window/internal/model"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CTXWIN_DB", "CTXWIN_STORE", "CTXWIN_EMBED_PROVIDER", "CTXWIN_EMBED_MODEL",
		"CTXWIN_EMBED_URL", "CTXWIN_EMBED_DIMS", "OLLAMA_HOST", "OPENAI_API_KEY",
		"CTXWIN_LLM_URL", "CTXWIN_LOG_LEVEL", "CTXWIN_LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := Default()
	if cfg.Window != def.Window || cfg.Chunker != def.Chunker || cfg.Store.Backend != BackendSQLite {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[tokens]
chars_per_token = 3.5

[window]
strategy = "summarizing"
lookback_messages = 20

[embedding]
provider = "ollama"
dims = 384

[store]
backend = "file"
dir = "~/ctx-sessions"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CTXWIN_EMBED_MODEL", "all-minilm")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("CTXWIN_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tokens.CharsPerToken != 3.5 || cfg.Window.Strategy != WindowSummarizing || cfg.Window.LookbackMessages != 20 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Window.SummaryTokens != 300 {
		t.Errorf("unset keys should keep defaults, got %d", cfg.Window.SummaryTokens)
	}
	if cfg.Embedding.Model != "all-minilm" || cfg.Embedding.URL != "http://gpu-box:11434" {
		t.Errorf("env overrides not applied: %+v", cfg.Embedding)
	}
	if home, _ := os.UserHomeDir(); cfg.Store.Dir != filepath.Join(home, "ctx-sessions") {
		t.Errorf("home not expanded: %s", cfg.Store.Dir)
	}
	if lvl, _ := ParseLevel(cfg.Log.Level); lvl != slog.LevelDebug {
		t.Errorf("log level override not applied: %s", cfg.Log.Level)
	}
	if p := cfg.Provider(); p.Provider != "ollama" || p.Dims != 384 {
		t.Errorf("unexpected provider config %+v", p)
	}
}

func TestLoad_BadTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("[tokens\nchars_per_token = "), 0o644)
	if _, err := Load(path); !errors.Is(err, model.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chars per token", func(c *Config) { c.Tokens.CharsPerToken = 0 }},
		{"negative offset", func(c *Config) { c.Tokens.Offset = -1 }},
		{"unknown window", func(c *Config) { c.Window.Strategy = "lru" }},
		{"negative lookback", func(c *Config) { c.Window.LookbackMessages = -1 }},
		{"zero chunk tokens", func(c *Config) { c.Chunker.MaxChunkTokens = 0 }},
		{"unknown chunk strategy", func(c *Config) { c.Chunker.Strategy = "words" }},
		{"negative dims", func(c *Config) { c.Embedding.Provider = "hash"; c.Embedding.Dims = -4 }},
		{"negative top k", func(c *Config) { c.Recall.TopK = -1 }},
		{"negative recall tokens", func(c *Config) { c.Recall.MaxTokens = -1 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"unknown level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown format", func(c *Config) { c.Log.Format = "xml" }},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, model.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.Recall.TopK = 9
	cfg.LLM.APIKey = "secret"

	if err := Write(path, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) == "" || strings.Contains(string(data), "secret") {
		t.Errorf("unexpected file contents:\n%s", data)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Recall.TopK != 9 {
		t.Errorf("top_k not round-tripped: %d", got.Recall.TopK)
	}
}
