package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Retrieve a message by id",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer a.Close()

	msg, err := a.conv.Message(args[0])
	if err != nil {
		exitErr("get", err)
	}

	if textOutput() {
		fmt.Printf("%s: %s\n", msg.Role, msg.Content)
		return
	}
	printJSON(msg)
}
