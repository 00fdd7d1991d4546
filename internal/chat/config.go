// internal/chat/config.go
package chat

import "time"

const (
	DefaultRetrievalK = 5
	DefaultSearchK    = 3
	DefaultIdleTTL    = 30 * time.Minute
)

type Config struct {
	RetrievalK int
	SearchK    int

	// Defaults applied to new sessions.
	Model       string
	Temperature float64
	MaxTokens   int
	RAGOn       bool
	SearchOn    bool
}

func LoadConfig() *Config {
	return &Config{
		RetrievalK:  DefaultRetrievalK,
		SearchK:     DefaultSearchK,
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
	}
}
