package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/krabwidget/krab/internal/persistence"
)

// Settings are the process-level options read from the environment.
type Settings struct {
	Home           string        `env:"KRAB_HOME"`
	Storage        string        `env:"KRAB_STORAGE" envDefault:"sqlite"`
	DBPath         string        `env:"KRAB_DB_PATH"`
	RedisURL       string        `env:"KRAB_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	HealthInterval time.Duration `env:"KRAB_HEALTH_INTERVAL" envDefault:"60s"`
	HealthTimeout  time.Duration `env:"KRAB_HEALTH_TIMEOUT" envDefault:"10s"`
	ContextSize    int           `env:"KRAB_CONTEXT_SIZE" envDefault:"10"`
	HistoryLimit   int           `env:"KRAB_HISTORY_LIMIT" envDefault:"50"`
	LogLevel       string        `env:"KRAB_LOG_LEVEL" envDefault:"info"`
	LogFile        string        `env:"KRAB_LOG_FILE"`
	MetricsAddr    string        `env:"KRAB_METRICS_ADDR"`
}

// LoadSettings reads optional dotenv files and then the environment.
// Missing dotenv files are skipped; variables already set in the
// environment win over dotenv values.
func LoadSettings(dotenvFiles ...string) (Settings, error) {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Settings{}, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return parseSettings(env.Options{})
}

func parseSettings(opts env.Options) (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return Settings{}, fmt.Errorf("parsing environment: %w", err)
	}
	if err := s.fillPaths(); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// fillPaths derives the paths that default to locations under Home.
func (s *Settings) fillPaths() error {
	if s.Home == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		s.Home = filepath.Join(homeDir, ".krab")
	}
	if s.DBPath == "" {
		s.DBPath = filepath.Join(s.Home, "krab.db")
	}
	if s.LogFile == "" {
		s.LogFile = filepath.Join(s.Home, "krab.log")
	}
	return nil
}

// Validate reports every invalid setting at once.
func (s Settings) Validate() error {
	var result *multierror.Error
	switch s.Storage {
	case persistence.DriverSQLite, persistence.DriverRedis, persistence.DriverFile:
	default:
		result = multierror.Append(result, fmt.Errorf("KRAB_STORAGE: unknown driver %q", s.Storage))
	}
	if s.HealthInterval <= 0 {
		result = multierror.Append(result, errors.New("KRAB_HEALTH_INTERVAL must be positive"))
	}
	if s.HealthTimeout <= 0 {
		result = multierror.Append(result, errors.New("KRAB_HEALTH_TIMEOUT must be positive"))
	}
	if s.ContextSize < 1 {
		result = multierror.Append(result, errors.New("KRAB_CONTEXT_SIZE must be at least 1"))
	}
	if s.HistoryLimit < 1 {
		result = multierror.Append(result, errors.New("KRAB_HISTORY_LIMIT must be at least 1"))
	}
	return result.ErrorOrNil()
}

// StorageOptions maps the settings onto the persistence driver options.
func (s Settings) StorageOptions() persistence.Options {
	return persistence.Options{
		Driver:     s.Storage,
		SQLitePath: s.DBPath,
		RedisURL:   s.RedisURL,
		Dir:        filepath.Join(s.Home, "store"),
	}
}
