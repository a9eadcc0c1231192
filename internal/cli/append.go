package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "append [content]",
		Short: "Append a message to the session",
		Long:  "Append a message. Content can be a positional arg or piped via stdin.",
		Run:   runAppend,
	}

	cmd.Flags().StringP("role", "r", "user", "Role: user, assistant, system")
	cmd.Flags().String("id", "", "Message id (default: generated)")
	cmd.Flags().String("meta", "", "JSON metadata object")

	RootCmd.AddCommand(cmd)
}

// readContent takes the positional args, or stdin when it is piped.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func runAppend(cmd *cobra.Command, args []string) {
	role, _ := cmd.Flags().GetString("role")
	id, _ := cmd.Flags().GetString("id")
	meta, _ := cmd.Flags().GetString("meta")

	content := strings.TrimSpace(readContent(args))
	if content == "" {
		exitErr("append", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	msg := model.Message{ID: id, Role: model.Role(role), Content: content}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &msg.Metadata); err != nil {
			exitErr("parse meta", err)
		}
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		exitErr("open session", err)
	}
	defer a.Close()

	stored, err := a.conv.AppendMessage(cmd.Context(), msg)
	if err != nil {
		if !errors.Is(err, model.ErrNotIndexed) {
			exitErr("append", err)
		}
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if textOutput() {
		fmt.Println(stored.ID)
		return
	}
	printJSON(stored)
}
