package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configFileName = ".bm-console.yaml"

// Config represents the benchmark console configuration
type Config struct {
	DatabasePath string        `yaml:"database"`
	ServerURL    string        `yaml:"server_url"`
	Listen       string        `yaml:"listen"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LogLevel     string        `yaml:"log_level"`
	LogFile      string        `yaml:"log_file,omitempty"`
}

// Keys lists the configuration keys accepted by Get and Set
var Keys = []string{"database", "server_url", "listen", "poll_interval", "log_level", "log_file"}

var logLevels = []string{"debug", "info", "warn", "error"}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	dbPath := "bm-console.db"
	if err == nil {
		dbPath = filepath.Join(homeDir, ".bm-console", "bm-console.db")
	}
	return &Config{
		DatabasePath: dbPath,
		ServerURL:    "http://localhost:9080",
		Listen:       ":9080",
		PollInterval: 5 * time.Second,
		LogLevel:     "info",
	}
}

// Load loads configuration from file and environment variables
// Priority: environment variables > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFromFile(cfg, GetConfigPath()); err != nil {
		// Config file is optional, so we just skip if not found
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	overrides := map[string]string{
		"database":      os.Getenv("BMC_DB"),
		"server_url":    os.Getenv("BMC_SERVER_URL"),
		"listen":        os.Getenv("BMC_LISTEN"),
		"poll_interval": os.Getenv("BMC_POLL_INTERVAL"),
		"log_level":     os.Getenv("BMC_LOG_LEVEL"),
		"log_file":      os.Getenv("BMC_LOG_FILE"),
	}
	for _, key := range Keys {
		if value := overrides[key]; value != "" {
			if err := cfg.Set(key, value); err != nil {
				return nil, fmt.Errorf("invalid environment override: %w", err)
			}
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Save saves the configuration to a file
func (cfg *Config) Save(path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	configPath := os.Getenv("BMC_CONFIG")
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(homeDir, configFileName)
		} else {
			configPath = configFileName
		}
	}
	return configPath
}

// Get returns the value of a configuration key as text
func (cfg *Config) Get(key string) (string, error) {
	switch key {
	case "database":
		return cfg.DatabasePath, nil
	case "server_url":
		return cfg.ServerURL, nil
	case "listen":
		return cfg.Listen, nil
	case "poll_interval":
		return cfg.PollInterval.String(), nil
	case "log_level":
		return cfg.LogLevel, nil
	case "log_file":
		return cfg.LogFile, nil
	}
	return "", fmt.Errorf("unknown config key '%s' (valid keys: %s)", key, strings.Join(Keys, ", "))
}

// Set parses value and stores it under key
func (cfg *Config) Set(key, value string) error {
	switch key {
	case "database":
		cfg.DatabasePath = value
	case "server_url":
		cfg.ServerURL = strings.TrimRight(value, "/")
	case "listen":
		cfg.Listen = value
	case "poll_interval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", value, err)
		}
		cfg.PollInterval = d
	case "log_level":
		cfg.LogLevel = strings.ToLower(value)
	case "log_file":
		cfg.LogFile = value
	default:
		return fmt.Errorf("unknown config key '%s' (valid keys: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

// GetDatabasePath returns the database path, expanding ~/ if needed
func (cfg *Config) GetDatabasePath() string {
	return expandHome(cfg.DatabasePath)
}

// GetLogFile returns the log file path, expanding ~/ if needed
func (cfg *Config) GetLogFile() string {
	return expandHome(cfg.LogFile)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}

// ValidateDatabase checks the database path and creates its directory
func (cfg *Config) ValidateDatabase() error {
	if cfg.DatabasePath == "" {
		return fmt.Errorf("database path is empty")
	}
	dir := filepath.Dir(cfg.GetDatabasePath())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

// ValidateServerURL checks that the server URL is an absolute http(s) URL
func (cfg *Config) ValidateServerURL() error {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server_url '%s': %w", cfg.ServerURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server_url '%s': use http://host:port", cfg.ServerURL)
	}
	return nil
}

// Validate checks every setting
func (cfg *Config) Validate() error {
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}
	if err := cfg.ValidateServerURL(); err != nil {
		return err
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", cfg.PollInterval)
	}
	valid := false
	for _, level := range logLevels {
		if cfg.LogLevel == level {
			valid = true
		}
	}
	if !valid {
		return fmt.Errorf("invalid log_level '%s' (use %s)", cfg.LogLevel, strings.Join(logLevels, ", "))
	}
	return nil
}
