package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/db"
	"github.com/phonginreallife/oncall-notifier/internal/logger"
)

const (
	DefaultRefreshMinutes = 5
	MinRefreshMinutes     = 1
	MaxRefreshMinutes     = 60

	// LastCheckLayout is the format of the last_ticket_check setting
	LastCheckLayout = "2006-01-02 15:04:05"
)

var (
	ErrInvalidTimezone      = errors.New("unknown timezone identifier")
	ErrRefreshIntervalRange = fmt.Errorf("refresh interval must be between %d and %d minutes", MinRefreshMinutes, MaxRefreshMinutes)
)

// TwilioCredentials is the SMS account and sender number
type TwilioCredentials struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
}

func (c TwilioCredentials) Complete() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.PhoneNumber != ""
}

// SettingsService is the key/value config store backed by system_settings.
// Reads never fail: errors are logged and the fallback is returned.
type SettingsService struct {
	PG        *sql.DB
	logger    *zap.Logger
	fallbacks map[string]string
	now       func() time.Time
}

// NewSettingsService creates the store. fallbacks maps setting keys to values
// used when the key is absent or empty, typically sourced from the
// environment.
func NewSettingsService(pg *sql.DB, log *zap.Logger, fallbacks map[string]string) *SettingsService {
	fb := make(map[string]string, len(fallbacks))
	for k, v := range fallbacks {
		if v != "" {
			fb[k] = v
		}
	}
	return &SettingsService{
		PG:        pg,
		logger:    logger.OrNop(log),
		fallbacks: fb,
		now:       time.Now,
	}
}

// Get returns the stored value for key. An absent or empty value resolves to
// the configured fallback for key, then def.
func (s *SettingsService) Get(ctx context.Context, key, def string) string {
	if fb, ok := s.fallbacks[key]; ok {
		def = fb
	}

	var value string
	err := s.PG.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to read setting, using default",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return def
	}

	if value == "" {
		return def
	}
	return value
}

// Set writes key=value in its own transaction, updating in place when the
// key exists.
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	err := db.WithTransaction(ctx, s.PG, func(tx *sql.Tx) error {
		now := s.now().UTC()
		res, err := tx.ExecContext(ctx, `UPDATE system_settings SET value = $1, updated_at = $2 WHERE key = $3`, value, now, key)
		if err != nil {
			return fmt.Errorf("failed to update setting: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO system_settings (key, value, updated_at) VALUES ($1, $2, $3)`, key, value, now); err != nil {
			return fmt.Errorf("failed to insert setting: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to save setting", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// List returns every stored setting ordered by key
func (s *SettingsService) List(ctx context.Context) ([]db.SystemSetting, error) {
	rows, err := s.PG.QueryContext(ctx, `SELECT key, value, updated_at FROM system_settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var settings []db.SystemSetting
	for rows.Next() {
		var (
			setting   db.SystemSetting
			updatedAt db.Timestamp
		)
		if err := rows.Scan(&setting.Key, &setting.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		setting.UpdatedAt = updatedAt.Time
		settings = append(settings, setting)
	}
	return settings, rows.Err()
}

// RefreshInterval is the poll interval. Values that are not whole minutes in
// range fall back to the default.
func (s *SettingsService) RefreshInterval(ctx context.Context) time.Duration {
	raw := s.Get(ctx, db.SettingRefreshInterval, strconv.Itoa(DefaultRefreshMinutes))
	minutes, err := ParseRefreshInterval(raw)
	if err != nil {
		s.logger.Warn("Invalid refresh interval, using default",
			zap.String("value", raw),
			zap.Int("default_minutes", DefaultRefreshMinutes),
			zap.Error(err),
		)
		minutes = DefaultRefreshMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// ParseRefreshInterval validates a refresh interval in minutes
func ParseRefreshInterval(raw string) (int, error) {
	minutes, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("refresh interval %q is not a whole number: %w", raw, err)
	}
	if minutes < MinRefreshMinutes || minutes > MaxRefreshMinutes {
		return 0, ErrRefreshIntervalRange
	}
	return minutes, nil
}

func (s *SettingsService) SetRefreshInterval(ctx context.Context, raw string) error {
	minutes, err := ParseRefreshInterval(raw)
	if err != nil {
		return err
	}
	return s.Set(ctx, db.SettingRefreshInterval, strconv.Itoa(minutes))
}

// Location is the configured timezone, UTC when unset or unknown
func (s *SettingsService) Location(ctx context.Context) *time.Location {
	name := s.Get(ctx, db.SettingTimezone, "UTC")
	loc, err := LoadTimezone(name)
	if err != nil {
		s.logger.Error("Invalid timezone setting, using UTC",
			zap.String("timezone", name),
			zap.Error(err),
		)
		return time.UTC
	}
	return loc
}

// LoadTimezone resolves an IANA timezone identifier
func LoadTimezone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	// time.LoadLocation maps "" and "Local" to non-portable zones
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

func (s *SettingsService) SetTimezone(ctx context.Context, name string) error {
	loc, err := LoadTimezone(name)
	if err != nil {
		return err
	}
	return s.Set(ctx, db.SettingTimezone, loc.String())
}

func (s *SettingsService) AteraAPIKey(ctx context.Context) string {
	return s.Get(ctx, db.SettingAteraAPIKey, "")
}

// TwilioCredentials implements CredentialsProvider
func (s *SettingsService) TwilioCredentials(ctx context.Context) TwilioCredentials {
	return TwilioCredentials{
		AccountSID:  s.Get(ctx, db.SettingTwilioAccountSID, ""),
		AuthToken:   s.Get(ctx, db.SettingTwilioAuthToken, ""),
		PhoneNumber: s.Get(ctx, db.SettingTwilioPhoneNumber, ""),
	}
}

// RecordTicketCheck stores t as the last ingestion attempt, rendered in the
// configured timezone.
func (s *SettingsService) RecordTicketCheck(ctx context.Context, t time.Time) (string, error) {
	stamp := t.In(s.Location(ctx)).Format(LastCheckLayout)
	return stamp, s.Set(ctx, db.SettingLastTicketCheck, stamp)
}

func (s *SettingsService) LastTicketCheck(ctx context.Context) string {
	return s.Get(ctx, db.SettingLastTicketCheck, "")
}
