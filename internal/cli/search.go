package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search messages by keyword",
		Long:  "Full-text search over stored messages. Needs the sqlite backend.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().Bool("all", false, "Search every session")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	s, err := openSQLite()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	params := store.SearchParams{Query: query, Limit: limit}
	if !all {
		params.Session = getSession()
	}
	results, err := s.Search(cmd.Context(), params)
	if err != nil {
		exitErr("search", err)
	}

	if textOutput() {
		for _, r := range results {
			fmt.Printf("%s\t%s\t%s\t%s\n", r.Session, r.ID, r.Role, r.Snippet)
		}
		return
	}
	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(results)
}
