package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hound-taskchat/internal/chat"
	"hound-taskchat/internal/config"
	"hound-taskchat/shared/logging"
)

var (
	askUser         string
	askConversation string
	askDialect      string
	askTimezone     string
	askUseDatabase  bool
	askJSON         bool
)

// askCmd runs a single chat turn
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Run one chat turn and print the reply",
	Long: `Runs one chat turn and prints the reply and the resulting actions.

Tasks live in memory unless --db is given, in which case the configured
DATABASE_DRIVER is used. Gemini is used when keys are configured.

Example:
  taskchat ask --user u1 "ذكرني بكرة الساعة 6 مساء اشتري خبز"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "cli", "user id")
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "conversation id")
	askCmd.Flags().StringVar(&askDialect, "dialect", "", "reply dialect: pal, egy or khg")
	askCmd.Flags().StringVar(&askTimezone, "timezone", "", "IANA timezone of the user")
	askCmd.Flags().BoolVar(&askUseDatabase, "db", false, "use the configured database instead of memory")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the full response as JSON")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !askUseDatabase {
		cfg.DatabaseDriver = config.DriverMemory
	}
	logger := logging.NewNop()
	if cfg.Debug {
		logger = newLogger(cfg)
	}
	defer logger.Sync()

	a, err := buildApp(cmd.Context(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.close()

	resp, err := a.engine.Handle(cmd.Context(), chat.Request{
		UserID:         askUser,
		Message:        strings.Join(args, " "),
		ConversationID: askConversation,
		Dialect:        askDialect,
		Timezone:       askTimezone,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintln(out, resp.Reply)
	for _, act := range resp.Actions {
		payload, err := json.Marshal(act.Payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "[%s] %s\n", act.Type, payload)
	}
	return nil
}
