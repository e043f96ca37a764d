package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type statusResponse struct {
	WithinBusinessHours bool   `json:"within_business_hours"`
	CurrentTime         string `json:"current_time"`
	Timezone            string `json:"timezone"`
	Holiday             *struct {
		Name string `json:"name"`
	} `json:"holiday"`
	OnCall []struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"on_call"`
}

type statsResponse struct {
	Runs         int64  `json:"runs"`
	Rejected     int64  `json:"rejected"`
	Running      bool   `json:"running"`
	Interval     string `json:"interval"`
	LastOutcome  string `json:"last_outcome"`
	LastDuration string `json:"last_duration"`
	LastCheck    string `json:"last_check"`
	LastError    string `json:"last_error"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coverage and scheduler state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := apiClient(15 * time.Second)

		var status statusResponse
		resp, err := client.R().SetContext(cmd.Context()).SetResult(&status).Get("/business-hours/status")
		if err != nil {
			return fmt.Errorf("failed to reach notifier: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return apiError(resp)
		}

		var stats statsResponse
		resp, err = client.R().SetContext(cmd.Context()).SetResult(&stats).Get("/worker/stats")
		if err != nil {
			return fmt.Errorf("failed to reach notifier: %w", err)
		}
		if resp.StatusCode() != http.StatusOK {
			return apiError(resp)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Time:            %s (%s)\n", status.CurrentTime, status.Timezone)
		fmt.Fprintf(w, "Business hours:  %t\n", status.WithinBusinessHours)
		if status.Holiday != nil {
			fmt.Fprintf(w, "Holiday:         %s\n", status.Holiday.Name)
		}
		if len(status.OnCall) == 0 {
			fmt.Fprintln(w, "On call:         nobody")
		}
		for _, tech := range status.OnCall {
			fmt.Fprintf(w, "On call:         %s %s\n", tech.Name, tech.Phone)
		}

		fmt.Fprintf(w, "Interval:        %s\n", stats.Interval)
		fmt.Fprintf(w, "Cycles:          %d run, %d rejected, running=%t\n", stats.Runs, stats.Rejected, stats.Running)
		if stats.LastOutcome != "" {
			fmt.Fprintf(w, "Last cycle:      %s in %s (checked %s)\n", stats.LastOutcome, stats.LastDuration, stats.LastCheck)
		}
		if stats.LastError != "" {
			fmt.Fprintf(w, "Last error:      %s\n", stats.LastError)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
