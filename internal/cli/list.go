package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages of the session",
		Run:   runList,
	}

	cmd.Flags().String("role", "", "Filter by role")
	cmd.Flags().IntP("limit", "l", 20, "Show the newest N messages (0 for all)")
	cmd.Flags().Bool("ids-only", false, "Only output message ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	role, _ := cmd.Flags().GetString("role")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer a.Close()

	msgs := []model.Message{}
	for _, m := range a.conv.Messages() {
		if role == "" || string(m.Role) == role {
			msgs = append(msgs, m)
		}
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	switch {
	case idsOnly:
		for _, m := range msgs {
			fmt.Println(m.ID)
		}
	case textOutput():
		for _, m := range msgs {
			fmt.Printf("%s  %-9s %s\n", m.Timestamp.Local().Format("2006-01-02 15:04"), m.Role, m.Content)
		}
	default:
		printJSON(msgs)
	}
}
