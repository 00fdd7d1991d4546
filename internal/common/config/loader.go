// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultTokenCeiling    = 50000
	DefaultWarningFraction = 0.8
	DefaultHistoryWindow   = 10
	DefaultMaxPassages     = 5
	DefaultModel           = "gpt-4o-mini"
	DefaultTemperature     = 0.7
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// ENV override like SESSION_TOKEN_CEILING
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	registerDefaults(v)

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	// 1. base config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// 2. environment overlay
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // ignore error if not found

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	registerDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// registerDefaults covers values where zero is a legal setting.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("apis.genai.temperature", DefaultTemperature)
	v.SetDefault("session.warning_fraction", DefaultWarningFraction)
	v.SetDefault("turn_log.dir", "logs")
	v.SetDefault("turn_log.timeout", 5000)
}

// loadEnvFile loads .env from the first location that has one.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// Direct override if config values are still empty after expansion
func overrideEmptyConfig(cfg *Config) {
	if cfg.APIs.GenAI.APIKey == "" {
		cfg.APIs.GenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIs.Embeddings.APIKey == "" {
		cfg.APIs.Embeddings.APIKey = cfg.APIs.GenAI.APIKey
	}
	if cfg.APIs.Embeddings.BaseURL == "" {
		cfg.APIs.Embeddings.BaseURL = cfg.APIs.GenAI.BaseURL
	}

	if cfg.APIs.WebSearch.APIKey == "" {
		cfg.APIs.WebSearch.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if cfg.APIs.WebSearch.EngineID == "" {
		cfg.APIs.WebSearch.EngineID = os.Getenv("GOOGLE_CSE_ID")
	}

	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Database.Redis.Password == "" {
		cfg.Database.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "wellnavigator"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	for key, stage := range cfg.Stages {
		if stage.Timeout == 0 {
			stage.Timeout = 30000
		}
		if stage.MaxRetries == 0 {
			stage.MaxRetries = 3
		}
		cfg.Stages[key] = stage
	}

	if cfg.Retrieval.Backend == "" {
		cfg.Retrieval.Backend = "bundle"
	}
	if cfg.Retrieval.IndexDir == "" {
		cfg.Retrieval.IndexDir = "data/index"
	}
	if cfg.Retrieval.Index == "" {
		cfg.Retrieval.Index = "health_passages"
	}
	if cfg.Retrieval.MaxPassages == 0 {
		cfg.Retrieval.MaxPassages = DefaultMaxPassages
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = cfg.Retrieval.MaxPassages
	}

	if cfg.APIs.GenAI.Model == "" {
		cfg.APIs.GenAI.Model = DefaultModel
	}
	if cfg.APIs.GenAI.Timeout == 0 {
		cfg.APIs.GenAI.Timeout = 60000
	}
	if cfg.APIs.GenAI.MaxRetries == 0 {
		cfg.APIs.GenAI.MaxRetries = 3
	}
	if cfg.APIs.Embeddings.Model == "" {
		cfg.APIs.Embeddings.Model = "text-embedding-3-small"
	}
	if cfg.APIs.Embeddings.Timeout == 0 {
		cfg.APIs.Embeddings.Timeout = 10000
	}
	if cfg.APIs.WebSearch.BaseURL == "" {
		cfg.APIs.WebSearch.BaseURL = "https://www.googleapis.com/customsearch/v1"
	}
	if cfg.APIs.WebSearch.Timeout == 0 {
		cfg.APIs.WebSearch.Timeout = 10000
	}
	if cfg.APIs.WebSearch.TopK == 0 {
		cfg.APIs.WebSearch.TopK = 3
	}
	if cfg.APIs.WebSearch.Burst == 0 {
		cfg.APIs.WebSearch.Burst = 1
	}

	if cfg.Session.TokenCeiling == 0 {
		cfg.Session.TokenCeiling = DefaultTokenCeiling
	}
	if cfg.Session.HistoryWindow == 0 {
		cfg.Session.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.Session.IdleTTL == 0 {
		cfg.Session.IdleTTL = 30 * 60 * 1000
	}

	if cfg.TurnLog.Table == "" {
		cfg.TurnLog.Table = "turn_log"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Session.TokenCeiling < 0 {
		return fmt.Errorf("session.token_ceiling must be positive")
	}
	if cfg.Session.WarningFraction <= 0 || cfg.Session.WarningFraction >= 1 {
		return fmt.Errorf("session.warning_fraction must be between 0 and 1")
	}
	if cfg.APIs.GenAI.Temperature < 0 || cfg.APIs.GenAI.Temperature > 2 {
		return fmt.Errorf("apis.genai.temperature must be between 0 and 2")
	}

	switch cfg.Retrieval.Backend {
	case "bundle":
	case "elasticsearch":
		if cfg.Database.Elasticsearch.GetURL() == "" {
			return fmt.Errorf("database.elasticsearch.addresses or url is required for the elasticsearch backend")
		}
	default:
		return fmt.Errorf("retrieval.backend %q is not supported", cfg.Retrieval.Backend)
	}

	if cfg.TurnLog.PostgresEnabled {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetStageConfig retrieves stage-specific configuration with fallback to defaults
func GetStageConfig(cfg *Config, stage string) StageConfig {
	if s, exists := cfg.Stages[stage]; exists {
		return s
	}

	return StageConfig{
		Enabled:    true,
		Timeout:    30000,
		MaxRetries: 3,
	}
}

// IsStageEnabled checks if a specific stage is enabled
func IsStageEnabled(cfg *Config, stage string) bool {
	if s, exists := cfg.Stages[stage]; exists {
		return s.Enabled
	}
	return true
}
