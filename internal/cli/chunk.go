package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/chunker"
	"github.com/rcliao/context-window/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chunk [content]",
		Short: "Show how content would be chunked for embedding",
		Long:  "Split content with the configured chunker. Content can be a positional arg or piped via stdin.",
		Run:   runChunk,
	}

	cmd.Flags().Int("max-tokens", 0, "Override chunker.max_chunk_tokens")
	cmd.Flags().String("strategy", "", "Override chunker.strategy: fixed_size, sentence_boundary, paragraph_boundary")

	RootCmd.AddCommand(cmd)
}

func runChunk(cmd *cobra.Command, args []string) {
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	strategy, _ := cmd.Flags().GetString("strategy")

	content := readContent(args)
	if strings.TrimSpace(content) == "" {
		exitErr("chunk", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	opts := cfg.ChunkerOptions()
	if maxTokens > 0 {
		opts.MaxChunkTokens = maxTokens
	}
	if strategy != "" {
		opts.Strategy = chunker.Strategy(strategy)
	}
	if err := opts.Validate(); err != nil {
		exitErr("chunk", err)
	}
	counter, err := cfg.Counter()
	if err != nil {
		exitErr("chunk", err)
	}

	chunks := chunker.ChunkMessage(model.NewMessage(model.RoleUser, content), opts, counter)
	if chunks == nil {
		chunks = []model.Chunk{}
	}

	if textOutput() {
		for _, c := range chunks {
			fmt.Printf("--- chunk %d (%d tokens)\n%s\n", c.SequenceIndex, c.EstimatedTokens, c.Content)
		}
		return
	}
	printJSON(chunks)
}
