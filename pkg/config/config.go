package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Uploader UploaderConfig `yaml:"uploader" json:"uploader"`
	Policy   PolicyConfig   `yaml:"policy" json:"policy"`
	Transfer TransferConfig `yaml:"transfer" json:"transfer"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// UploaderConfig holds orchestrator-level limits
type UploaderConfig struct {
	MaxFiles             int           `yaml:"maxFiles" json:"maxFiles"`
	MaxConcurrentUploads int           `yaml:"maxConcurrentUploads" json:"maxConcurrentUploads"`
	CancelGrace          time.Duration `yaml:"cancelGrace" json:"cancelGrace"`
	AllowedCategories    []string      `yaml:"allowedCategories" json:"allowedCategories"`
}

// PolicyConfig holds the per-file validation policy
type PolicyConfig struct {
	MaxFileSizeBytes int64    `yaml:"maxFileSizeBytes" json:"maxFileSizeBytes"`
	AllowedMIMETypes []string `yaml:"allowedMimeTypes" json:"allowedMimeTypes"`
}

// TransferConfig selects and configures the transfer backend
type TransferConfig struct {
	Kind      string        `yaml:"kind" json:"kind"` // "http" or "s3"
	BaseURL   string        `yaml:"baseUrl" json:"baseUrl"`
	Bucket    string        `yaml:"bucket" json:"bucket"`
	KeyPrefix string        `yaml:"keyPrefix" json:"keyPrefix"`
	Region    string        `yaml:"region" json:"region"`
	Endpoint  string        `yaml:"endpoint" json:"endpoint"`
	AccessKey string        `yaml:"accessKey" json:"accessKey"`
	SecretKey string        `yaml:"secretKey" json:"secretKey"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Output string `yaml:"output" json:"output"`
}

// DefaultConfig Default configuration values
var DefaultConfig = Config{
	Uploader: UploaderConfig{
		MaxFiles:             10,
		MaxConcurrentUploads: 3,
		CancelGrace:          30 * time.Second,
	},
	Policy: PolicyConfig{
		MaxFileSizeBytes: 100 * 1024 * 1024, // 100MB
	},
	Transfer: TransferConfig{
		Kind:    "http",
		Timeout: 5 * time.Minute,
	},
	Logging: LoggingConfig{
		Level:  "INFO",
		Output: "stdout",
	},
}

// LoadConfig loads configuration from multiple sources in order of precedence:
// 1. Environment variables (highest precedence)
// 2. Configuration file
// 3. Default values (lowest precedence)
func LoadConfig() (*Config, string, error) {
	config := DefaultConfig

	path, err := loadFromFile(&config)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config file: %w", err)
	}

	loadFromEnv(&config)

	if e := config.Validate(); e != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", e)
	}

	return &config, path, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(config *Config) (string, error) {
	configPaths := []string{
		os.Getenv("UPLINK_CONFIG_PATH"), // Custom path from environment
		"./uplink.yaml",                 // Current directory
		"./config/uplink.yaml",          // Config subdirectory
		"/etc/uplink/config.yaml",       // System-wide
	}

	for _, path := range configPaths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return "", fmt.Errorf("failed to parse config file %s: %w", path, err)
		}

		return path, nil
	}

	return "built-in defaults (no config file found)", nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	// Uploader config
	if val := os.Getenv("UPLINK_MAX_FILES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Uploader.MaxFiles = n
		}
	}
	if val := os.Getenv("UPLINK_MAX_CONCURRENT_UPLOADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Uploader.MaxConcurrentUploads = n
		}
	}
	if val := os.Getenv("UPLINK_CANCEL_GRACE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Uploader.CancelGrace = d
		}
	}
	if val := os.Getenv("UPLINK_ALLOWED_CATEGORIES"); val != "" {
		config.Uploader.AllowedCategories = splitList(val)
	}

	// Policy config
	if val := os.Getenv("UPLINK_MAX_FILE_SIZE"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Policy.MaxFileSizeBytes = n
		}
	}
	if val := os.Getenv("UPLINK_ALLOWED_MIME_TYPES"); val != "" {
		config.Policy.AllowedMIMETypes = splitList(val)
	}

	// Transfer config
	if val := os.Getenv("UPLINK_TRANSFER_KIND"); val != "" {
		config.Transfer.Kind = val
	}
	if val := os.Getenv("UPLINK_TRANSFER_BASE_URL"); val != "" {
		config.Transfer.BaseURL = val
	}
	if val := os.Getenv("UPLINK_TRANSFER_BUCKET"); val != "" {
		config.Transfer.Bucket = val
	}
	if val := os.Getenv("UPLINK_TRANSFER_KEY_PREFIX"); val != "" {
		config.Transfer.KeyPrefix = val
	}
	if val := os.Getenv("UPLINK_TRANSFER_REGION"); val != "" {
		config.Transfer.Region = val
	}
	if val := os.Getenv("UPLINK_TRANSFER_ENDPOINT"); val != "" {
		config.Transfer.Endpoint = val
	}
	if val := os.Getenv("UPLINK_TRANSFER_ACCESS_KEY"); val != "" {
		config.Transfer.AccessKey = val
	}
	if val := os.Getenv("UPLINK_TRANSFER_SECRET_KEY"); val != "" {
		config.Transfer.SecretKey = val
	}
	if val := os.Getenv("UPLINK_TRANSFER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			config.Transfer.Timeout = d
		}
	}

	// Logging config
	if val := os.Getenv("UPLINK_LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("UPLINK_LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Uploader.MaxFiles <= 0 {
		return fmt.Errorf("uploader.maxFiles must be positive, got %d", c.Uploader.MaxFiles)
	}
	if c.Uploader.MaxConcurrentUploads <= 0 {
		return fmt.Errorf("uploader.maxConcurrentUploads must be positive, got %d", c.Uploader.MaxConcurrentUploads)
	}
	if c.Uploader.CancelGrace <= 0 {
		return fmt.Errorf("uploader.cancelGrace must be positive, got %v", c.Uploader.CancelGrace)
	}
	if c.Policy.MaxFileSizeBytes < 0 {
		return fmt.Errorf("policy.maxFileSizeBytes must not be negative, got %d", c.Policy.MaxFileSizeBytes)
	}

	switch c.Transfer.Kind {
	case "http", "s3":
	default:
		return fmt.Errorf("transfer.kind must be \"http\" or \"s3\", got %q", c.Transfer.Kind)
	}

	return nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
