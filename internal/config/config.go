// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir      string // Base directory for the database and backups (always absolute)
	DatabasePath string // SQLite database file path
	Port         int
	LogLevel     string
	DevMode      bool

	// Poller settings
	InstanceID             int // 1 or 2; shards the attribute backlog across replicas
	PricePollerEnabled     bool
	AttributePollerEnabled bool

	// Backup settings (S3-compatible storage; disabled when bucket is empty)
	Backup BackupConfig
}

// BackupConfig holds settings for the nightly database backup upload
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Custom endpoint for S3-compatible providers
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	RetainCount     int // Number of backup archives to keep remotely
}

// Enabled reports whether backups are configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("QUANTRANK_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:                absDataDir,
		DatabasePath:           filepath.Join(absDataDir, "quantrank.db"),
		Port:                   getEnvAsInt("PORT", 8000),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DevMode:                getEnvAsBool("DEV_MODE", false),
		InstanceID:             getEnvAsInt("INSTANCE_ID", 1),
		PricePollerEnabled:     getEnvAsBool("PRICE_POLLER_ENABLED", true),
		AttributePollerEnabled: getEnvAsBool("ATTRIBUTE_POLLER_ENABLED", true),
		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			RetainCount:     getEnvAsInt("BACKUP_RETAIN_COUNT", 7),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.InstanceID != 1 && c.InstanceID != 2 {
		return fmt.Errorf("INSTANCE_ID must be 1 or 2, got %d", c.InstanceID)
	}

	if c.Backup.Enabled() {
		if c.Backup.AccessKeyID == "" || c.Backup.SecretAccessKey == "" {
			return fmt.Errorf("backup bucket configured but S3 credentials are missing")
		}
	}

	return nil
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
