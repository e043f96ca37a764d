package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phonginreallife/oncall-notifier/db"
)

func newSettingsWithMock(t *testing.T, fallbacks map[string]string) (*SettingsService, sqlmock.Sqlmock) {
	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })

	s := NewSettingsService(pg, zap.NewNop(), fallbacks)
	s.now = func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestSettingsService_Get(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		fallbacks map[string]string
		mockFunc  func(mock sqlmock.Sqlmock)
		want      string
	}{
		{
			name: "stored value",
			mockFunc: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM system_settings").
					WithArgs("timezone").
					WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("Europe/Berlin"))
			},
			want: "Europe/Berlin",
		},
		{
			name: "missing row returns default",
			mockFunc: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM system_settings").
					WithArgs("timezone").
					WillReturnRows(sqlmock.NewRows([]string{"value"}))
			},
			want: "UTC",
		},
		{
			name:      "missing row prefers environment fallback",
			fallbacks: map[string]string{"timezone": "America/Chicago"},
			mockFunc: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM system_settings").
					WithArgs("timezone").
					WillReturnRows(sqlmock.NewRows([]string{"value"}))
			},
			want: "America/Chicago",
		},
		{
			name:      "empty stored value uses fallback",
			fallbacks: map[string]string{"timezone": "America/Chicago"},
			mockFunc: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM system_settings").
					WithArgs("timezone").
					WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(""))
			},
			want: "America/Chicago",
		},
		{
			name: "read error returns default",
			mockFunc: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery("SELECT value FROM system_settings").
					WithArgs("timezone").
					WillReturnError(errors.New("connection reset"))
			},
			want: "UTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newSettingsWithMock(t, tt.fallbacks)
			tt.mockFunc(mock)

			assert.Equal(t, tt.want, s.Get(ctx, "timezone", "UTC"))
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSettingsService_Set(t *testing.T) {
	ctx := context.Background()

	t.Run("updates existing row", func(t *testing.T) {
		s, mock := newSettingsWithMock(t, nil)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE system_settings SET value").
			WithArgs("10", sqlmock.AnyArg(), "refresh_interval").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.Set(ctx, "refresh_interval", "10"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inserts when absent", func(t *testing.T) {
		s, mock := newSettingsWithMock(t, nil)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE system_settings SET value").
			WithArgs("10", sqlmock.AnyArg(), "refresh_interval").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO system_settings").
			WithArgs("refresh_interval", "10", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		require.NoError(t, s.Set(ctx, "refresh_interval", "10"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		s, mock := newSettingsWithMock(t, nil)
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE system_settings SET value").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO system_settings").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := s.Set(ctx, "refresh_interval", "10")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSettingsService_RefreshInterval(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		stored string
		want   time.Duration
	}{
		{stored: "10", want: 10 * time.Minute},
		{stored: "60", want: 60 * time.Minute},
		{stored: "0", want: 5 * time.Minute},
		{stored: "61", want: 5 * time.Minute},
		{stored: "ten", want: 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.stored, func(t *testing.T) {
			s, mock := newSettingsWithMock(t, nil)
			mock.ExpectQuery("SELECT value FROM system_settings").
				WithArgs(db.SettingRefreshInterval).
				WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(tt.stored))

			assert.Equal(t, tt.want, s.RefreshInterval(ctx))
		})
	}
}

func TestSettingsService_SetRefreshIntervalRejectsOutOfRange(t *testing.T) {
	s, mock := newSettingsWithMock(t, nil)

	err := s.SetRefreshInterval(context.Background(), "90")
	assert.ErrorIs(t, err, ErrRefreshIntervalRange)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsService_Location(t *testing.T) {
	ctx := context.Background()

	t.Run("valid zone", func(t *testing.T) {
		s, mock := newSettingsWithMock(t, nil)
		mock.ExpectQuery("SELECT value FROM system_settings").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("America/New_York"))

		assert.Equal(t, "America/New_York", s.Location(ctx).String())
	})

	t.Run("invalid zone falls back to UTC", func(t *testing.T) {
		s, mock := newSettingsWithMock(t, nil)
		mock.ExpectQuery("SELECT value FROM system_settings").
			WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("Mars/Olympus_Mons"))

		assert.Equal(t, time.UTC, s.Location(ctx))
	})
}

func TestSettingsService_SetTimezoneValidates(t *testing.T) {
	s, mock := newSettingsWithMock(t, nil)

	err := s.SetTimezone(context.Background(), "Not/A_Zone")
	assert.ErrorIs(t, err, ErrInvalidTimezone)

	err = s.SetTimezone(context.Background(), "Local")
	assert.ErrorIs(t, err, ErrInvalidTimezone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsService_TwilioCredentialsFallBackToEnvironment(t *testing.T) {
	s, mock := newSettingsWithMock(t, map[string]string{
		db.SettingTwilioAuthToken:   "env-token",
		db.SettingTwilioPhoneNumber: "+15550001111",
	})
	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(db.SettingTwilioAccountSID).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("AC-db"))
	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(db.SettingTwilioAuthToken).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(db.SettingTwilioPhoneNumber).
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	creds := s.TwilioCredentials(context.Background())

	assert.Equal(t, TwilioCredentials{AccountSID: "AC-db", AuthToken: "env-token", PhoneNumber: "+15550001111"}, creds)
	assert.True(t, creds.Complete())
	assert.NoError(t, mock.ExpectationsWereMet())
}
