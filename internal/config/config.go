package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "HOMEBUDGET_"

type Config struct {
	// HTTP server
	Port    string
	BaseURL string

	// Database
	DBPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Tokens
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Host patterns allowed to open websockets from another origin.
	AllowedOrigins []string

	// Optional change-event broker. Empty URL disables publishing.
	AMQPURL      string
	AMQPExchange string

	CleanupInterval time.Duration

	// Encrypted database snapshots to S3-compatible storage. Empty bucket disables them.
	BackupS3Endpoint  string
	BackupS3Bucket    string
	BackupS3Region    string
	BackupS3AccessKey string
	BackupS3SecretKey string
	BackupS3Prefix    string
	BackupPassphrase  string
	BackupInterval    time.Duration
	BackupRetention   time.Duration
}

// BackupEnabled reports whether a snapshot bucket is configured.
func (c *Config) BackupEnabled() bool {
	return c.BackupS3Bucket != ""
}

// Load reads configuration from the environment. Files named in envFiles
// (".env" when none are given) are loaded first if present; variables already
// set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	port := getEnv("PORT", "8000")
	cfg := &Config{
		Port:    port,
		BaseURL: getEnv("BASE_URL", "http://localhost:"+port),
		DBPath:  getEnv("DB_PATH", "homebudget.db"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "homebudget.events"),

		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),

		BackupS3Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
		BackupS3Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
		BackupS3Region:    getEnv("BACKUP_S3_REGION", "us-east-1"),
		BackupS3AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
		BackupS3SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
		BackupS3Prefix:    getEnv("BACKUP_S3_PREFIX", ""),
		BackupPassphrase:  getEnv("BACKUP_PASSPHRASE", ""),
		BackupInterval:    getEnvDuration("BACKUP_INTERVAL", 24*time.Hour),
		BackupRetention:   getEnvDuration("BACKUP_RETENTION", 30*24*time.Hour),
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		errs = append(errs, "database path cannot be empty")
	}

	if len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT secret must be at least 32 characters")
	}

	if c.AccessTokenTTL < time.Minute {
		errs = append(errs, fmt.Sprintf("invalid access token TTL %v: must be at least 1 minute", c.AccessTokenTTL))
	}
	if c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, fmt.Sprintf("invalid refresh token TTL %v: must exceed access token TTL %v", c.RefreshTokenTTL, c.AccessTokenTTL))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.CleanupInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid cleanup interval %v: must be at least 1 second", c.CleanupInterval))
	}

	if c.BackupEnabled() {
		if c.BackupS3AccessKey == "" || c.BackupS3SecretKey == "" {
			errs = append(errs, "backup S3 access key and secret key are required when a backup bucket is set")
		}
		if len(c.BackupPassphrase) < 12 {
			errs = append(errs, "backup passphrase must be at least 12 characters")
		}
		if c.BackupInterval < time.Minute {
			errs = append(errs, fmt.Sprintf("invalid backup interval %v: must be at least 1 minute", c.BackupInterval))
		}
		if c.BackupRetention < 0 {
			errs = append(errs, fmt.Sprintf("invalid backup retention %v: must not be negative", c.BackupRetention))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(envPrefix+key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(envPrefix + key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
