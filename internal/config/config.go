// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for the run database (always absolute)
	ParamsFile       string // SIMM parameter table; empty selects the embedded table
	PostingThreshold float64
	Workers          int // Default shard count for ensemble computations
	RunRetention     time.Duration
	PurgeSchedule    string
	LogLevel         string
	Port             int
	DevMode          bool
	WSOrigins        []string // Origin host patterns allowed on the event stream
	Backup           BackupConfig
}

// BackupConfig configures uploads of the run database to an S3-compatible
// bucket. Backups are disabled when Bucket is empty.
type BackupConfig struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string
	RetentionDays   int
}

// Enabled reports whether backups are configured.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// scheduleParser accepts the six-field cron form used by the scheduler.
var scheduleParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SIMM_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		ParamsFile:       getEnv("SIMM_PARAMS_FILE", ""),
		PostingThreshold: getEnvAsFloat("SIMM_POSTING_THRESHOLD", 0),
		Workers:          getEnvAsInt("SIMM_WORKERS", 1),
		RunRetention:     time.Duration(getEnvAsInt("SIMM_RUN_RETENTION_DAYS", 90)) * 24 * time.Hour,
		PurgeSchedule:    getEnv("SIMM_PURGE_SCHEDULE", "0 30 3 * * *"), // 03:30 daily
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             getEnvAsInt("GO_PORT", 8001),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		WSOrigins:        getEnvAsList("SIMM_WS_ORIGINS"),
		Backup: BackupConfig{
			Bucket:          getEnv("SIMM_BACKUP_BUCKET", ""),
			Endpoint:        getEnv("SIMM_BACKUP_ENDPOINT", ""),
			Region:          getEnv("SIMM_BACKUP_REGION", "auto"),
			AccessKeyID:     getEnv("SIMM_BACKUP_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("SIMM_BACKUP_SECRET_ACCESS_KEY", ""),
			Schedule:        getEnv("SIMM_BACKUP_SCHEDULE", "0 0 4 * * *"), // 04:00 daily
			RetentionDays:   getEnvAsInt("SIMM_BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.PostingThreshold < 0 {
		return fmt.Errorf("SIMM_POSTING_THRESHOLD must not be negative, got %g", c.PostingThreshold)
	}
	if c.Workers < 1 {
		return fmt.Errorf("SIMM_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.RunRetention <= 0 {
		return fmt.Errorf("SIMM_RUN_RETENTION_DAYS must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT %d is out of range", c.Port)
	}
	if _, err := scheduleParser.Parse(c.PurgeSchedule); err != nil {
		return fmt.Errorf("invalid SIMM_PURGE_SCHEDULE %q: %w", c.PurgeSchedule, err)
	}
	if c.Backup.Enabled() {
		if _, err := scheduleParser.Parse(c.Backup.Schedule); err != nil {
			return fmt.Errorf("invalid SIMM_BACKUP_SCHEDULE %q: %w", c.Backup.Schedule, err)
		}
		if c.Backup.RetentionDays < 0 {
			return fmt.Errorf("SIMM_BACKUP_RETENTION_DAYS must not be negative")
		}
		if (c.Backup.AccessKeyID == "") != (c.Backup.SecretAccessKey == "") {
			return fmt.Errorf("SIMM_BACKUP_ACCESS_KEY_ID and SIMM_BACKUP_SECRET_ACCESS_KEY must be set together")
		}
	}
	if c.ParamsFile != "" {
		if _, err := os.Stat(c.ParamsFile); err != nil {
			return fmt.Errorf("SIMM_PARAMS_FILE: %w", err)
		}
	}
	return nil
}

// RunsDBPath returns the path of the margin run database.
func (c *Config) RunsDBPath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty items.
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
