// Package main provides the CLI entry point for the gigaclaw host.
//
// Gigaclaw runs AI-agent turns inside isolated containers, one turn per
// inbound chat message or scheduled trigger, exchanging state with the
// container exclusively through bind mounts and the child's stdin/stdout.
//
// Start the host:
//
//	gigaclaw serve --config gigaclaw.yaml
//
// Register a group and a scheduled task:
//
//	gigaclaw group add --folder ops --name Ops --chat -10012345
//	gigaclaw task add --group ops --schedule "0 9 * * *" --prompt "daily summary"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "gigaclaw",
		Short: "Container-isolated AI agent host",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "gigaclaw.yaml", "path to config file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newGroupCommand())
	root.AddCommand(newTaskCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
