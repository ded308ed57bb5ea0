package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/spice-recur/internal/common"
)

// Viper keys read by Load.
const (
	KeyDatabasePath = "database.path"
	KeyBusyRetries  = "database.busy_retries"
	KeyLogLevel     = "logging.level"
	KeyLogFormat    = "logging.format"
	KeyUserID       = "user.id"
)

// Defaults applied when a key is unset.
const (
	DefaultDatabasePath = "$HOME/.local/share/recur/recur.db"
	DefaultBusyRetries  = 3
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
	DefaultUserID       = "local"
)

// Config holds the settings the recur commands need.
type Config struct {
	DatabasePath string
	LogLevel     string
	LogFormat    string
	UserID       string
	BusyRetries  int
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDatabasePath, DefaultDatabasePath)
	v.SetDefault(KeyBusyRetries, DefaultBusyRetries)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)
	v.SetDefault(KeyUserID, DefaultUserID)
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v. Precedence is the usual viper one:
// flags, RECUR_ environment variables, config file, then defaults.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabasePath: DefaultDatabasePath,
		BusyRetries:  DefaultBusyRetries,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		UserID:       DefaultUserID,
	}

	if p := v.GetString(KeyDatabasePath); p != "" {
		cfg.DatabasePath = p
	}
	cfg.DatabasePath = ExpandPath(cfg.DatabasePath)

	if v.IsSet(KeyBusyRetries) {
		cfg.BusyRetries = v.GetInt(KeyBusyRetries)
	}
	if l := v.GetString(KeyLogLevel); l != "" {
		cfg.LogLevel = strings.ToLower(l)
	}
	if f := v.GetString(KeyLogFormat); f != "" {
		cfg.LogFormat = strings.ToLower(f)
	}
	if u := strings.TrimSpace(v.GetString(KeyUserID)); u != "" {
		cfg.UserID = u
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.BusyRetries < 1 {
		return fmt.Errorf("%w: %s must be at least 1, got %d", common.ErrInvalidConfig, KeyBusyRetries, c.BusyRetries)
	}
	if _, err := common.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("%w: invalid log format: %s", common.ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
