package cli

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/rcliao/context-window/internal/config"
)

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Run:   runConfigShow,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Run:   runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")

	configCmd.AddCommand(showCmd, initCmd)
	RootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	b, err := toml.Marshal(cfg)
	if err != nil {
		exitErr("config show", err)
	}
	fmt.Print(string(b))
}

func runConfigInit(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")

	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		exitErr("config init", fmt.Errorf("%s exists (use --force to overwrite)", path))
	}
	if err := config.Write(path, config.Default()); err != nil {
		exitErr("config init", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"path":%q}`+"\n", path)
}
