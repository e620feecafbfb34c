// Package main provides the entry point for the topfew CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/topfew/cmd/topfew/commands"
)

func main() {
	rootCmd := commands.NewTopCommand()
	rootCmd.AddCommand(commands.NewVersionCommand())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
