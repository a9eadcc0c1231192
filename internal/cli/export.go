package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export sessions as JSON",
		Long:  "Export the current session as JSON, or every session with --all.",
		Run:   runExport,
	}

	cmd.Flags().Bool("all", false, "Export every session")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")

	sessions, _, err := openSessions(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	if sessions == nil {
		exitErr("export", fmt.Errorf("the memory backend keeps nothing to export"))
	}
	defer sessions.Close()

	id := getSession()
	if all {
		id = ""
	}
	exports, err := store.Export(cmd.Context(), sessions, id)
	if err != nil {
		exitErr("export", err)
	}
	if exports == nil {
		exports = []store.SessionExport{}
	}

	printJSON(exports)
}
