// Command taskchat serves the Arabic task chat over HTTP, gRPC, SMS and
// RabbitMQ, and runs single turns from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "taskchat",
	Short: "Conversational task manager for Arabic dialects",
	Long: `taskchat turns chat messages in Palestinian, Egyptian or Gulf Arabic into
task operations: create, list, update, complete and delete, with follow-up
questions when a request is ambiguous.

Configuration is read from the environment (see DESIGN.md for the table).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, askCmd, peekCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
