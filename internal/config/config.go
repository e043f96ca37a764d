package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/phonginreallife/oncall-notifier/db"
)

// Config holds process configuration. Runtime-tunable values (poll interval,
// timezone, credentials) live in system_settings; the values here are the
// environment fallbacks for them.
type Config struct {
	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	Port        string `mapstructure:"port"`

	Log       LogConfig       `mapstructure:"log"`
	Atera     AteraConfig     `mapstructure:"atera"`
	Twilio    TwilioConfig    `mapstructure:"twilio"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Sources records which files Load read, for logging once a logger exists
	Sources []string `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type AteraConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	PageSize       int           `mapstructure:"page_size"`
	Timeout        time.Duration `mapstructure:"timeout"`
	TicketLinkBase string        `mapstructure:"ticket_link_base"`
}

type TwilioConfig struct {
	AccountSID  string        `mapstructure:"account_sid"`
	AuthToken   string        `mapstructure:"auth_token"`
	PhoneNumber string        `mapstructure:"phone_number"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	CycleTimeout    time.Duration `mapstructure:"cycle_timeout"`
	LockKey         string        `mapstructure:"lock_key"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

const (
	defaultCycleTimeout = 2 * time.Minute
	defaultLockTTL      = 5 * time.Minute
)

// Load reads configuration from an optional .env file, an optional YAML
// config file and the environment, in increasing precedence.
func Load(path string) (*Config, error) {
	var sources []string
	if err := godotenv.Load(); err == nil {
		sources = append(sources, ".env")
	}

	v := viper.New()

	v.SetDefault("database_url", "sqlite://oncall.db")
	v.SetDefault("port", "8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("atera.base_url", "https://app.atera.com")
	v.SetDefault("atera.page_size", 50)
	v.SetDefault("atera.timeout", "30s")
	v.SetDefault("atera.ticket_link_base", "https://app.atera.com/new/ticket/")
	v.SetDefault("twilio.timeout", "15s")
	v.SetDefault("scheduler.default_interval", "5m")
	v.SetDefault("scheduler.cycle_timeout", defaultCycleTimeout.String())
	v.SetDefault("scheduler.lock_key", "oncall-notifier:cycle-lock")
	v.SetDefault("scheduler.lock_ttl", defaultLockTTL.String())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.SetConfigName("dev.config")
		v.SetConfigType("yaml")
	}

	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")

	_ = v.BindEnv("atera.base_url", "ATERA_BASE_URL")
	_ = v.BindEnv("atera.api_key", "ATERA_API_KEY")

	_ = v.BindEnv("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	_ = v.BindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	_ = v.BindEnv("twilio.phone_number", "TWILIO_PHONE_NUMBER")

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	} else {
		sources = append(sources, v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Sources = sources

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects a Redis lease that can expire while its cycle still runs
func (c *Config) validate() error {
	if c.RedisURL == "" {
		return nil
	}
	timeout, ttl := c.Scheduler.CycleTimeout, c.Scheduler.LockTTL
	if timeout <= 0 {
		timeout = defaultCycleTimeout
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if ttl <= timeout {
		return fmt.Errorf("scheduler.lock_ttl (%s) must be longer than scheduler.cycle_timeout (%s)", ttl, timeout)
	}
	return nil
}

// SettingFallbacks maps system_settings keys to the values configured here.
// A stored non-empty setting still wins over these.
func (c *Config) SettingFallbacks() map[string]string {
	fb := map[string]string{}
	add := func(key, value string) {
		if value != "" {
			fb[key] = value
		}
	}

	add(db.SettingAteraAPIKey, c.Atera.APIKey)
	add(db.SettingTwilioAccountSID, c.Twilio.AccountSID)
	add(db.SettingTwilioAuthToken, c.Twilio.AuthToken)
	add(db.SettingTwilioPhoneNumber, c.Twilio.PhoneNumber)
	if c.Scheduler.DefaultInterval >= time.Minute {
		add(db.SettingRefreshInterval, strconv.Itoa(int(c.Scheduler.DefaultInterval/time.Minute)))
	}
	return fb
}
