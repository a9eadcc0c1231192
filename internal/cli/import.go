package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import sessions from JSON",
		Long: "Import sessions from JSON on stdin. Expects the format produced by export. " +
			"Run reindex afterwards to make imported messages recallable.",
		Run: runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		exitErr("read stdin", err)
	}

	var exports []store.SessionExport
	if err := json.Unmarshal(data, &exports); err != nil {
		exitErr("parse json", err)
	}

	sessions, _, err := openSessions(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	if sessions == nil {
		exitErr("import", fmt.Errorf("the memory backend cannot keep imported sessions"))
	}
	defer sessions.Close()

	imported, err := store.Import(cmd.Context(), sessions, exports)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"sessions":%d,"imported":%d}`+"\n", len(exports), imported)
}
