// internal/pipeline/session/log-turn/config.go
package logturn

import "time"

const (
	DefaultDir     = "logs"
	DefaultTable   = "turn_log"
	DefaultTimeout = 5 * time.Second
)

type Config struct {
	Dir   string
	Table string

	// Timeout bounds each table insert.
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Dir:     DefaultDir,
		Table:   DefaultTable,
		Timeout: DefaultTimeout,
	}
}
