package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hound-taskchat/internal/config"
	"hound-taskchat/internal/events"
)

var peekCount int

// peekCmd shows queued messages without consuming them
var peekCmd = &cobra.Command{
	Use:   "peek [queue]",
	Short: "Show messages waiting in a taskchat queue",
	Long: `Reads messages from a RabbitMQ queue and requeues them, so nothing is
consumed. Without a queue name it lists the queues taskchat uses.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPeek,
}

func init() {
	peekCmd.Flags().IntVar(&peekCount, "count", 10, "number of messages to show")
}

func runPeek(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		fmt.Fprintln(out, "Queues:")
		for _, q := range events.Queues {
			fmt.Fprintf(out, "  %s\n", q)
		}
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL environment variable is required")
	}

	queue := args[0]
	messages, err := events.Peek(cfg.RabbitMQURL, queue, peekCount)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		fmt.Fprintf(out, "Queue '%s' is empty\n", queue)
		return nil
	}

	fmt.Fprintf(out, "Queue: %s (%d messages shown)\n", queue, len(messages))
	fmt.Fprintln(out, strings.Repeat("=", 60))
	for i, msg := range messages {
		fmt.Fprintf(out, "\n[Message %d]\n", i+1)

		var payload map[string]interface{}
		if err := json.Unmarshal(msg.Body, &payload); err == nil {
			pretty, _ := json.MarshalIndent(payload, "", "  ")
			fmt.Fprintln(out, string(pretty))
		} else {
			fmt.Fprintln(out, string(msg.Body))
		}
	}
	return nil
}
