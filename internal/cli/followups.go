package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "followups",
		Short: "Suggest follow-up questions for the session",
		Long:  "Ask the chat model for follow-up questions. Needs OPENAI_API_KEY.",
		Run:   runFollowUps,
	}

	cmd.Flags().IntP("budget", "b", 0, "Build a prompt of this many tokens first and use it as context")

	RootCmd.AddCommand(cmd)
}

func runFollowUps(cmd *cobra.Command, args []string) {
	budget, _ := cmd.Flags().GetInt("budget")

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer a.Close()

	if budget > 0 {
		if err := a.warmIndex(cmd.Context()); err != nil {
			exitErr("index", err)
		}
		if _, err := a.conv.BuildPrompt(cmd.Context(), budget); err != nil {
			exitErr("prompt", err)
		}
	}

	questions, err := a.conv.GenerateFollowUpQuestions(cmd.Context())
	if err != nil {
		exitErr("followups", err)
	}

	if textOutput() {
		for _, q := range questions {
			fmt.Println(q)
		}
		return
	}
	printJSON(questions)
}
