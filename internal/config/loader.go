package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage selects the persistence backend.
type Storage string

const (
	StorageSQLite Storage = "sqlite"
	StorageMemory Storage = "memory"
)

const defaultEnvFile = ".env"

// Config captures environment driven configuration values for the calendar service.
type Config struct {
	HTTPPort        int
	SQLiteDSN       string
	Storage         Storage
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	NotifyBuffer    int
}

// Load parses configuration values from the current process environment.
//
// A dotenv file named by LIMS_ENV_FILE (default .env) is read first. Values
// already present in the environment win over the file. A missing default
// file is ignored; a missing file that was named explicitly is an error.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPPort:        8080,
		SQLiteDSN:       "data/lims-calendar.db",
		Storage:         StorageSQLite,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: 10 * time.Second,
		NotifyBuffer:    16,
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("LIMS_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "LIMS_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("LIMS_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if storage := strings.ToLower(strings.TrimSpace(os.Getenv("LIMS_STORAGE"))); storage != "" {
		switch Storage(storage) {
		case StorageSQLite, StorageMemory:
			cfg.Storage = Storage(storage)
		default:
			invalid = append(invalid, "LIMS_STORAGE")
		}
	}

	if levelValue := strings.TrimSpace(os.Getenv("LIMS_LOG_LEVEL")); levelValue != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelValue)); err != nil {
			invalid = append(invalid, "LIMS_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if timeoutValue := strings.TrimSpace(os.Getenv("LIMS_SHUTDOWN_TIMEOUT")); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "LIMS_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = timeout
		}
	}

	if bufferValue := strings.TrimSpace(os.Getenv("LIMS_NOTIFY_BUFFER")); bufferValue != "" {
		buffer, err := strconv.Atoi(bufferValue)
		if err != nil || buffer <= 0 {
			invalid = append(invalid, "LIMS_NOTIFY_BUFFER")
		} else {
			cfg.NotifyBuffer = buffer
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func loadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("LIMS_ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("env file %s: %w", path, err)
	}
	return nil
}
