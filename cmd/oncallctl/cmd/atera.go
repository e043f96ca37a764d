package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/services"
)

const ateraCheckPreview = 5

var ateraCmd = &cobra.Command{
	Use:   "atera",
	Short: "Ticket source diagnostics",
}

var ateraCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch the open tickets page with the stored API key",
	Long: `Call the ticket source once with the configured API key and report
what came back. Nothing is stored and no SMS is sent.

Examples:
  oncallctl atera check
  ATERA_BASE_URL=https://app.atera.com oncallctl atera check`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, settings, closeDB, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		apiKey := settings.AteraAPIKey(ctx)
		if apiKey == "" {
			return fmt.Errorf("%w: set it with `oncallctl settings set atera_api_key <key>`", services.ErrMissingAPIKey)
		}

		client := services.NewAteraClient(cfg.Atera.BaseURL, cfg.Atera.PageSize, cfg.Atera.Timeout, zap.NewNop())
		started := time.Now()
		items, err := client.FetchOpenTickets(ctx, apiKey)
		if err != nil {
			var statusErr *services.SourceStatusError
			if errors.As(err, &statusErr) {
				return fmt.Errorf("ticket source rejected the request: %w", err)
			}
			return fmt.Errorf("ticket source unreachable: %w", err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Ticket source OK: %d open tickets (%s, key %s)\n",
			len(items), time.Since(started).Round(time.Millisecond), displayValue("atera_api_key", apiKey))
		for _, item := range items[:min(len(items), ateraCheckPreview)] {
			fmt.Fprintf(w, "  #%s  %s  %s  %s\n", item.TicketID, item.TicketCreatedDate, item.CustomerName, item.TicketTitle)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ateraCmd)
	ateraCmd.AddCommand(ateraCheckCmd)
}
