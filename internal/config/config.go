package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Appointments AppointmentsConfig `mapstructure:"appointments"`
	Reminders    RemindersConfig    `mapstructure:"reminders"`
	Refresh      RefreshConfig      `mapstructure:"refresh"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
}

func (c DatabaseConfig) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

type AppointmentsConfig struct {
	DefaultPrice    float64 `mapstructure:"default_price"`
	DefaultDuration int     `mapstructure:"default_duration"`
	UpcomingLimit   int     `mapstructure:"upcoming_limit"`
}

type RemindersConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// RefreshConfig paces the background refresh of long-running views.
type RefreshConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

type MetricsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// LoadConfig reads config.yaml from the given directories (the working
// directory and ./config when none are given) and applies PRACTICE_*
// environment overrides, e.g. PRACTICE_DATABASE_PATH. A missing file is not
// an error.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("practice")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Database.Path = expandHome(config.Database.Path)
	return &config, nil
}

// Default returns the built-in defaults without reading files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// defaults alone always decode
	_ = v.Unmarshal(&config)
	config.Database.Path = expandHome(config.Database.Path)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.practice-local/practice.db")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("appointments.default_price", 0)
	v.SetDefault("appointments.default_duration", 50)
	v.SetDefault("appointments.upcoming_limit", 10)
	v.SetDefault("reminders.window", "48h")
	v.SetDefault("refresh.interval", "1m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("metrics.namespace", "practice")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
