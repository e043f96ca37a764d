package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "oncallctl",
	Short: "On-call notifier control CLI",
	Long: `Operate a running on-call ticket notifier.

refresh and status talk to the worker's HTTP API. settings reads and writes
the configuration store directly using DATABASE_URL.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultServer := os.Getenv("ONCALL_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8000"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "Notifier HTTP address (env ONCALL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("ONCALL_CONFIG_PATH"), "Path to the notifier config file")
}

// apiClient builds the HTTP client for the worker API. timeout must cover a
// full cycle for refresh.
func apiClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetBaseURL(serverURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
}

func apiError(resp *resty.Response) error {
	return fmt.Errorf("%s returned %d: %s", resp.Request.URL, resp.StatusCode(), resp.String())
}
