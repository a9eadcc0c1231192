package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/rcliao/context-window/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
