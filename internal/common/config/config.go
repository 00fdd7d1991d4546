// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig              `mapstructure:"app"`
	Server    ServerConfig           `mapstructure:"server"`
	Database  DatabaseConfig         `mapstructure:"database"`
	Stages    map[string]StageConfig `mapstructure:"stages"`
	Retrieval RetrievalConfig        `mapstructure:"retrieval"`
	APIs      APIsConfig             `mapstructure:"apis"`
	Session   SessionConfig          `mapstructure:"session"`
	TurnLog   TurnLogConfig          `mapstructure:"turn_log"`
	Logging   LoggingConfig          `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string   `mapstructure:"address"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // milliseconds
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StageConfig holds the settings shared by every pipeline stage.
type StageConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Timeout    int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries int  `mapstructure:"max_retries"` // generation only
}

// --- Specific Configuration Sections ---

// RetrievalConfig selects and tunes the knowledge-base backend.
type RetrievalConfig struct {
	Backend     string `mapstructure:"backend"` // "bundle" or "elasticsearch"
	IndexDir    string `mapstructure:"index_dir"`
	Index       string `mapstructure:"index"` // elasticsearch index name
	TopK        int    `mapstructure:"top_k"`
	MaxPassages int    `mapstructure:"max_passages"`
}

// APIsConfig holds settings for external API integrations.
type APIsConfig struct {
	GenAI struct {
		BaseURL     string  `mapstructure:"base_url"`
		APIKey      string  `mapstructure:"api_key"`
		Model       string  `mapstructure:"model"`
		Temperature float64 `mapstructure:"temperature"`
		MaxTokens   int     `mapstructure:"max_tokens"`
		Timeout     int     `mapstructure:"timeout"` // milliseconds
		MaxRetries  int     `mapstructure:"max_retries"`
	} `mapstructure:"genai"`

	Embeddings struct {
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
		Model   string `mapstructure:"model"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"embeddings"`

	WebSearch struct {
		BaseURL   string  `mapstructure:"base_url"`
		APIKey    string  `mapstructure:"api_key"`
		EngineID  string  `mapstructure:"engine_id"`
		Timeout   int     `mapstructure:"timeout"` // milliseconds
		RateLimit float64 `mapstructure:"rate_limit"` // requests per second, 0 disables
		Burst     int     `mapstructure:"burst"`
		CacheTTL  int     `mapstructure:"cache_ttl"` // seconds, 0 disables
		TopK      int     `mapstructure:"top_k"`
	} `mapstructure:"web_search"`
}

// SessionConfig holds the per-session token budget and history window.
type SessionConfig struct {
	TokenCeiling    int     `mapstructure:"token_ceiling"`
	WarningFraction float64 `mapstructure:"warning_fraction"`
	HistoryWindow   int     `mapstructure:"history_window"`
	IdleTTL         int     `mapstructure:"idle_ttl"` // milliseconds
	RAGOn           bool    `mapstructure:"rag_on"`
	SearchOn        bool    `mapstructure:"search_on"`
}

// TurnLogConfig controls where completed turns are appended.
type TurnLogConfig struct {
	Dir             string `mapstructure:"dir"`
	PostgresEnabled bool   `mapstructure:"postgres_enabled"`
	Table           string `mapstructure:"table"`
	Timeout         int    `mapstructure:"timeout"` // ms, per table insert
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
