package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every message of the session",
		Run:   runClear,
	}

	RootCmd.AddCommand(cmd)
}

func runClear(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer a.Close()

	n := len(a.conv.Messages())
	if err := a.conv.Clear(cmd.Context()); err != nil {
		exitErr("clear", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"session":%q,"removed":%d}`+"\n", a.conv.SessionID(), n)
}
