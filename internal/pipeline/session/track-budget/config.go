// internal/pipeline/session/track-budget/config.go
package trackbudget

const (
	DefaultCeiling         = 50000
	DefaultWarningFraction = 0.8
)

type Config struct {
	Ceiling         int
	WarningFraction float64
}

func LoadConfig() *Config {
	return &Config{
		Ceiling:         DefaultCeiling,
		WarningFraction: DefaultWarningFraction,
	}
}
