package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type refreshResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Outcome       string `json:"outcome"`
	CycleID       string `json:"cycle_id"`
	LastCheck     string `json:"last_check"`
	TicketCount   int    `json:"ticket_count"`
	NotifiedCount int    `json:"notified_count"`
	Error         string `json:"error"`
}

var refreshTimeout time.Duration

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run a ticket cycle now",
	Long: `Ask the worker to fetch open tickets and notify on-call technicians
immediately. Fails if a cycle is already running.

Examples:
  oncallctl refresh
  oncallctl refresh --server=http://notifier:8000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var out refreshResponse
		resp, err := apiClient(refreshTimeout).R().
			SetContext(cmd.Context()).
			SetResult(&out).
			SetError(&out).
			Post("/refresh-tickets")
		if err != nil {
			return fmt.Errorf("failed to reach notifier: %w", err)
		}

		switch resp.StatusCode() {
		case http.StatusOK:
		case http.StatusConflict:
			return errors.New("a ticket cycle is already in progress, try again shortly")
		default:
			return apiError(resp)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "[%s] %s\n", out.Outcome, out.Message)
		fmt.Fprintf(w, "Last check:   %s\n", out.LastCheck)
		fmt.Fprintf(w, "New tickets:  %d\n", out.TicketCount)
		fmt.Fprintf(w, "Notified:     %d\n", out.NotifiedCount)
		if !out.Success {
			return fmt.Errorf("cycle did not complete: %s", out.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().DurationVar(&refreshTimeout, "timeout", 3*time.Minute, "How long to wait for the cycle")
}
