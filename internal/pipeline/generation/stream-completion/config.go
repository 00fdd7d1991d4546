// internal/pipeline/generation/stream-completion/config.go
package streamcompletion

import "time"

const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

func LoadConfig() *Config {
	return &Config{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		Timeout:     60 * time.Second,
		MaxRetries:  2,
	}
}
