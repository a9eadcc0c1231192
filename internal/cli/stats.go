package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/conversation"
	"github.com/rcliao/context-window/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show session and database statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

type statsOutput struct {
	Session  *conversation.Stats `json:"session"`
	Database *store.Stats        `json:"database,omitempty"`
}

func runStats(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer a.Close()

	var out statsOutput
	if out.Session, err = a.conv.Stats(cmd.Context()); err != nil {
		exitErr("stats", err)
	}
	if a.sqlite != nil {
		if out.Database, err = a.sqlite.Stats(cmd.Context()); err != nil {
			exitErr("stats", err)
		}
	}

	printJSON(out)
}
