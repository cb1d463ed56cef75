package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// AppConfig holds application settings from TOML file
type AppConfig struct {
	App struct {
		Name        string `toml:"name"`
		Description string `toml:"description"`
	} `toml:"app"`

	Limits struct {
		MaxLogExport     int `toml:"max_log_export"`
		TopLimit         int `toml:"top_limit"`
		BroadcastWorkers int `toml:"broadcast_workers"`
	} `toml:"limits"`

	Export struct {
		Watermark string `toml:"watermark"`
		FileName  string `toml:"file_name"`
	} `toml:"export"`
}

// Config holds all configuration for the application
type Config struct {
	// Environment variables (secrets)
	TelegramBotToken string
	PostgresDSN      string

	// OperatorID is the fixed administrator allowed to use the private
	// /admin command and the broadcast flow
	OperatorID int64

	// Application settings from TOML
	App AppConfig
}

// Load reads configuration from environment variables and TOML file
func Load() (*Config, error) {
	appCfg, err := loadAppConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load app config: %w", err)
	}

	cfg := &Config{
		TelegramBotToken: os.Getenv("TG_BOT_TOKEN"),
		PostgresDSN:      os.Getenv("PG_DSN"),
		App:              *appCfg,
	}

	operatorStr := os.Getenv("OPERATOR_ID")
	if operatorStr != "" {
		operatorID, err := strconv.ParseInt(operatorStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid OPERATOR_ID %q: %w", operatorStr, err)
		}
		cfg.OperatorID = operatorID
	}

	// Allow environment variable overrides for some settings
	if envLimitStr := os.Getenv("MAX_LOG_EXPORT"); envLimitStr != "" {
		if maxLogExport, err := strconv.Atoi(envLimitStr); err == nil {
			cfg.App.Limits.MaxLogExport = maxLogExport
		}
	}

	if envWorkersStr := os.Getenv("BROADCAST_WORKERS"); envWorkersStr != "" {
		if workers, err := strconv.Atoi(envWorkersStr); err == nil {
			cfg.App.Limits.BroadcastWorkers = workers
		}
	}

	// Validate required fields
	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TG_BOT_TOKEN is required")
	}
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("PG_DSN is required")
	}
	if cfg.OperatorID == 0 {
		return nil, fmt.Errorf("OPERATOR_ID is required")
	}

	// Defaults for unset limits
	if cfg.App.Limits.MaxLogExport <= 0 {
		cfg.App.Limits.MaxLogExport = 1000
	}
	if cfg.App.Limits.TopLimit <= 0 {
		cfg.App.Limits.TopLimit = 10
	}
	if cfg.App.Limits.BroadcastWorkers <= 0 {
		cfg.App.Limits.BroadcastWorkers = 8
	}

	return cfg, nil
}

// loadAppConfig loads application configuration from TOML file
func loadAppConfig() (*AppConfig, error) {
	configPath := getEnvWithDefault("APP_CONFIG_PATH", "config/app.toml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config AppConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	return &config, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsOperator reports whether the given user is the fixed operator
func (c *Config) IsOperator(userID int64) bool {
	return userID == c.OperatorID
}
