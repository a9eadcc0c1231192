package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prompt [query]",
		Short: "Assemble the prompt for a token budget",
		Long: "Select the recent window, summaries of older turns and recalled context " +
			"that fit the budget. Recall uses the query, or the latest user message.",
		Run: runPrompt,
	}

	cmd.Flags().IntP("budget", "b", 4000, "Max tokens in the prompt")
	cmd.Flags().Bool("trace", false, "Print the selection trace to stderr (text format)")

	RootCmd.AddCommand(cmd)
}

func runPrompt(cmd *cobra.Command, args []string) {
	budget, _ := cmd.Flags().GetInt("budget")
	trace, _ := cmd.Flags().GetBool("trace")
	query := strings.Join(args, " ")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer a.Close()

	if err := a.warmIndex(cmd.Context()); err != nil {
		exitErr("index", err)
	}

	payload, err := a.conv.BuildPromptWithQuery(cmd.Context(), budget, query)
	if err != nil {
		exitErr("prompt", err)
	}

	if !textOutput() {
		printJSON(payload)
		return
	}
	fmt.Println(payload.PromptText)
	if trace && payload.Trace != nil {
		t := payload.Trace
		fmt.Fprintf(cmd.ErrOrStderr(), "strategy=%s budget=%d included=%d excluded=%d summaries=%d recalled=%d tokens=%d\n",
			t.Strategy, t.Budget, t.IncludedCount, t.ExcludedCount, t.SummaryCount, t.RecalledCount, payload.EstimatedTokens)
		if t.RecallSkipped != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "recall skipped: %s\n", t.RecallSkipped)
		}
	}
}
