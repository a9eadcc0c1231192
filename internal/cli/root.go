// Package cli implements the ctxwin CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/config"
)

var (
	dbPath      string
	sessionFlag string
	configPath  string
	formatFlag  string

	cfg config.Config
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "ctxwin",
	Short: "Context-window selection for chat conversations",
	Long: "Keep a conversation log and assemble the prompt that fits a token budget: " +
		"a recent window, optional summaries of older turns and recalled context.",
	PersistentPreRunE: setup,
	SilenceUsage:      true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $CTXWIN_DB or ~/.ctxwin/ctxwin.db)")
	RootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "Session id (default: $CTXWIN_SESSION or \"default\")")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $CTXWIN_CONFIG or ~/.ctxwin/config.toml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if dbPath != "" {
		loaded.Store.DBPath = dbPath
	}
	cfg = loaded

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func getSession() string {
	if sessionFlag != "" {
		return sessionFlag
	}
	if env := os.Getenv("CTXWIN_SESSION"); env != "" {
		return env
	}
	return "default"
}

func textOutput() bool { return formatFlag == "text" }

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
