package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/db"
	"github.com/phonginreallife/oncall-notifier/internal/config"
	"github.com/phonginreallife/oncall-notifier/services"
)

var reveal bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read or change stored settings",
	Long: `Read or change values in the notifier's configuration store.

Keys: ` + strings.Join(db.KnownSettings(), ", ") + `

Examples:
  oncallctl settings get
  oncallctl settings get timezone
  oncallctl settings set refresh_interval 10
  oncallctl settings set timezone America/New_York`,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Show effective setting values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, closeDB, err := openSettings(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		keys := db.KnownSettings()
		if len(args) == 1 {
			if !slices.Contains(keys, args[0]) {
				return fmt.Errorf("unknown setting %q", args[0])
			}
			keys = args[:1]
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, key := range keys {
			fmt.Fprintf(w, "%s\t%s\n", key, displayValue(key, effectiveValue(cmd.Context(), settings, key)))
		}
		return w.Flush()
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		settings, closeDB, err := openSettings(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB()

		if err := applySetting(cmd.Context(), settings, key, value); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s updated\n", key)
		if key == db.SettingRefreshInterval {
			fmt.Fprintln(cmd.OutOrStdout(), "The running worker picks up the new interval on restart.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	settingsGetCmd.Flags().BoolVar(&reveal, "reveal", false, "Show secret values unmasked")
}

func openSettings(ctx context.Context) (*services.SettingsService, func(), error) {
	_, settings, closeDB, err := openStore(ctx)
	return settings, closeDB, err
}

// openStore loads the config and opens the settings store it points at
func openStore(ctx context.Context) (*config.Config, *services.SettingsService, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pg, dialect, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Migrate(ctx, pg, dialect); err != nil {
		pg.Close()
		return nil, nil, nil, err
	}

	return cfg, newSettings(pg, cfg), func() { pg.Close() }, nil
}

func newSettings(pg *sql.DB, cfg *config.Config) *services.SettingsService {
	return services.NewSettingsService(pg, zap.NewNop(), cfg.SettingFallbacks())
}

// applySetting validates typed keys before storing them
func applySetting(ctx context.Context, settings *services.SettingsService, key, value string) error {
	switch key {
	case db.SettingRefreshInterval:
		return settings.SetRefreshInterval(ctx, value)
	case db.SettingTimezone:
		return settings.SetTimezone(ctx, value)
	case db.SettingLastTicketCheck:
		return fmt.Errorf("%s is maintained by the worker", key)
	}
	if !slices.Contains(db.KnownSettings(), key) {
		return fmt.Errorf("unknown setting %q", key)
	}
	return settings.Set(ctx, key, strings.TrimSpace(value))
}

func effectiveValue(ctx context.Context, settings *services.SettingsService, key string) string {
	switch key {
	case db.SettingRefreshInterval:
		return fmt.Sprintf("%d", int(settings.RefreshInterval(ctx).Minutes()))
	case db.SettingTimezone:
		return settings.Location(ctx).String()
	default:
		return settings.Get(ctx, key, "")
	}
}

func displayValue(key, value string) string {
	if value == "" {
		return "(not set)"
	}
	if reveal || !db.IsSecretSetting(key) {
		return value
	}
	if len(value) <= 8 {
		return "********"
	}
	return "****" + value[len(value)-4:]
}
