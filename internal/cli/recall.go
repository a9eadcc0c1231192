package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [query]",
		Short: "Find earlier messages similar to a query",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRecall,
	}

	cmd.Flags().IntP("limit", "l", 5, "Max results")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer a.Close()

	if !a.recallEnabled() {
		exitErr("recall", fmt.Errorf("recall needs [embedding] provider and [recall] enabled"))
	}
	if err := a.warmIndex(cmd.Context()); err != nil {
		exitErr("index", err)
	}

	results, err := a.conv.Recall(cmd.Context(), query, limit)
	if err != nil {
		exitErr("recall", err)
	}
	if results == nil {
		results = []model.Recalled{}
	}

	if textOutput() {
		for _, r := range results {
			fmt.Printf("%.3f\t%s\t%s\n", r.Score, r.Entry.MessageID(), r.Entry.Content)
		}
		return
	}
	printJSON(results)
}
