// internal/pipeline/guard/redact-pi/config.go
package redactpi

type Config struct {
	// Disabled rules are skipped; everything runs by default.
	Disabled map[Kind]bool
}

func LoadConfig() *Config {
	return &Config{Disabled: map[Kind]bool{}}
}
