package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the session's vector index",
		Long:  "Re-chunk and re-embed every message. Run after changing the embedding model or dimensions.",
		Run:   runReindex,
	}

	RootCmd.AddCommand(cmd)
}

func runReindex(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer a.Close()

	if !a.recallEnabled() {
		exitErr("reindex", fmt.Errorf("recall needs [embedding] provider and [recall] enabled"))
	}
	n, err := a.conv.Reindex(cmd.Context())
	if err != nil {
		exitErr("reindex", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"session":%q,"entries":%d}`+"\n", a.conv.SessionID(), n)
}
