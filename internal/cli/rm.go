package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm [id...]",
		Short: "Delete messages",
		Long:  "Delete messages from the session, its store and its vector index. Unknown ids are ignored.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer a.Close()

	before := len(a.conv.Messages())
	if err := a.conv.DeleteMessages(cmd.Context(), args); err != nil {
		exitErr("rm", err)
	}
	removed := before - len(a.conv.Messages())

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"session":%q,"removed":%d}`+"\n", a.conv.SessionID(), removed)
}
