package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/store"
)

func init() {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Session management",
	}

	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Print a fresh session id",
		Long:  "Print a fresh session id. Pass it with --session or CTXWIN_SESSION.",
		Run:   runSessionNew,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all sessions",
		Run:   runSessionList,
	}

	rmCmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a session and everything stored for it",
		Args:  cobra.ExactArgs(1),
		Run:   runSessionRm,
	}

	sessionCmd.AddCommand(newCmd, listCmd, rmCmd)
	RootCmd.AddCommand(sessionCmd)
}

func runSessionNew(cmd *cobra.Command, args []string) {
	fmt.Println(uuid.NewString())
}

func runSessionList(cmd *cobra.Command, args []string) {
	sessions, _, err := openSessions(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	if sessions == nil {
		printJSON([]store.SessionInfo{})
		return
	}
	defer sessions.Close()

	rows, err := sessions.ListSessions(cmd.Context())
	if err != nil {
		exitErr("list sessions", err)
	}
	if rows == nil {
		rows = []store.SessionInfo{}
	}

	if textOutput() {
		for _, r := range rows {
			fmt.Printf("%s\t%d\n", r.ID, r.Messages)
		}
		return
	}
	printJSON(rows)
}

func runSessionRm(cmd *cobra.Command, args []string) {
	sessions, _, err := openSessions(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	if sessions == nil {
		exitErr("session rm", fmt.Errorf("the memory backend keeps no sessions"))
	}
	defer sessions.Close()

	if err := sessions.DeleteSession(cmd.Context(), args[0]); err != nil {
		exitErr("session rm", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"session":%q}`+"\n", args[0])
}
