// Package config loads runtime settings from the environment, an optional .env file
// and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	AppName = "fxcalsync"

	BackendGoogle = "google"
	BackendCalDAV = "caldav"

	NewsForexFactory = "forexfactory"
	NewsFile         = "file"

	DefaultTimezone = "Africa/Johannesburg"
)

type Config struct {
	Google   GoogleConfig
	Timezone string         `validate:"required"`
	Location *time.Location `validate:"-"`
	DBFile   string         `validate:"required"`
	Log      LogConfig
	Calendar CalendarConfig
	News     NewsConfig
	Sync     SyncConfig

	// Schedule is a cron expression; empty runs a single sync.
	Schedule   string
	StatusAddr string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

type CalendarConfig struct {
	Backend        string `validate:"oneof=google caldav"`
	CalendarID     string `validate:"required"`
	CalDAVEndpoint string `validate:"required_if=Backend caldav"`
	CalDAVCalendar string
}

type NewsConfig struct {
	Source  string `validate:"oneof=forexfactory file"`
	URL     string `validate:"omitempty,url"`
	File    string `validate:"required_if=Source file"`
	Timeout time.Duration
}

type SyncConfig struct {
	Workers      int `validate:"min=1"`
	UserTimeout  time.Duration
	RunTimeout   time.Duration
	RetryAttempt int `validate:"min=1"`
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// DefaultDBFile is the SQLite database under the XDG data home.
func DefaultDBFile() string {
	return filepath.Join(xdg.DataHome, AppName, "users.db")
}

// DefaultConfigFile is where `config init` writes when no path is given.
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Load reads .env (if present), then the YAML file at path (if non-empty), with
// environment variables taking precedence over both.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Google: GoogleConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		},
		Timezone: v.GetString("TIMEZONE"),
		DBFile:   v.GetString("DB_FILE"),
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		Calendar: CalendarConfig{
			Backend:        strings.ToLower(v.GetString("CALENDAR_BACKEND")),
			CalendarID:     v.GetString("CALENDAR_ID"),
			CalDAVEndpoint: v.GetString("CALDAV_ENDPOINT"),
			CalDAVCalendar: v.GetString("CALDAV_CALENDAR_NAME"),
		},
		News: NewsConfig{
			Source:  strings.ToLower(v.GetString("NEWS_SOURCE")),
			URL:     v.GetString("NEWS_URL"),
			File:    v.GetString("NEWS_FILE"),
			Timeout: v.GetDuration("NEWS_TIMEOUT"),
		},
		Sync: SyncConfig{
			Workers:      v.GetInt("SYNC_WORKERS"),
			UserTimeout:  v.GetDuration("SYNC_USER_TIMEOUT"),
			RunTimeout:   v.GetDuration("SYNC_RUN_TIMEOUT"),
			RetryAttempt: v.GetInt("SYNC_RETRY_ATTEMPTS"),
			RetryInitial: v.GetDuration("SYNC_RETRY_INITIAL"),
			RetryMax:     v.GetDuration("SYNC_RETRY_MAX"),
		},
		Schedule:   v.GetString("SCHEDULE"),
		StatusAddr: v.GetString("STATUS_ADDR"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("TIMEZONE", DefaultTimezone)
	v.SetDefault("DB_FILE", DefaultDBFile())

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	v.SetDefault("CALENDAR_BACKEND", BackendGoogle)
	v.SetDefault("CALENDAR_ID", "primary")
	v.SetDefault("CALDAV_ENDPOINT", "https://apidata.googleusercontent.com/caldav/v2")
	v.SetDefault("CALDAV_CALENDAR_NAME", "")

	v.SetDefault("NEWS_SOURCE", NewsForexFactory)
	v.SetDefault("NEWS_URL", "https://www.forexfactory.com/calendar?day=today")
	v.SetDefault("NEWS_FILE", "")
	v.SetDefault("NEWS_TIMEOUT", "60s")

	v.SetDefault("SYNC_WORKERS", 1)
	v.SetDefault("SYNC_USER_TIMEOUT", "2m")
	v.SetDefault("SYNC_RUN_TIMEOUT", "30m")
	v.SetDefault("SYNC_RETRY_ATTEMPTS", 3)
	v.SetDefault("SYNC_RETRY_INITIAL", "500ms")
	v.SetDefault("SYNC_RETRY_MAX", "5s")

	v.SetDefault("SCHEDULE", "")
	v.SetDefault("STATUS_ADDR", "")
}

// Validate checks field constraints and resolves the timezone.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, d := range map[string]time.Duration{
		"NEWS_TIMEOUT":       c.News.Timeout,
		"SYNC_USER_TIMEOUT":  c.Sync.UserTimeout,
		"SYNC_RUN_TIMEOUT":   c.Sync.RunTimeout,
		"SYNC_RETRY_INITIAL": c.Sync.RetryInitial,
		"SYNC_RETRY_MAX":     c.Sync.RetryMax,
	} {
		if d <= 0 {
			return fmt.Errorf("invalid configuration: %s must be positive", name)
		}
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid configuration: unknown timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc
	return nil
}

// Values returns the settings keyed the way they appear in a YAML config file.
// The client secret is masked when redact is set.
func (c *Config) Values(redact bool) map[string]any {
	secret := c.Google.ClientSecret
	if redact && secret != "" {
		secret = "********"
	}
	return map[string]any{
		"google_client_id":     c.Google.ClientID,
		"google_client_secret": secret,
		"timezone":             c.Timezone,
		"db_file":              c.DBFile,
		"log_level":            c.Log.Level,
		"log_format":           c.Log.Format,
		"calendar_backend":     c.Calendar.Backend,
		"calendar_id":          c.Calendar.CalendarID,
		"caldav_endpoint":      c.Calendar.CalDAVEndpoint,
		"caldav_calendar_name": c.Calendar.CalDAVCalendar,
		"news_source":          c.News.Source,
		"news_url":             c.News.URL,
		"news_file":            c.News.File,
		"news_timeout":         c.News.Timeout.String(),
		"sync_workers":         c.Sync.Workers,
		"sync_user_timeout":    c.Sync.UserTimeout.String(),
		"sync_run_timeout":     c.Sync.RunTimeout.String(),
		"sync_retry_attempts":  c.Sync.RetryAttempt,
		"sync_retry_initial":   c.Sync.RetryInitial.String(),
		"sync_retry_max":       c.Sync.RetryMax.String(),
		"schedule":             c.Schedule,
		"status_addr":          c.StatusAddr,
	}
}

// Save writes cfg as YAML to path. The write goes through a temp file in the same
// directory followed by a rename, and the result is readable only by the owner.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg.Values(false))
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+AppName+"-config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}
