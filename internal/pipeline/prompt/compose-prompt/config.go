// internal/pipeline/prompt/compose-prompt/config.go
package composeprompt

const (
	DefaultMaxPassages   = 5
	DefaultHistoryWindow = 10
	maxLabelRunes        = 15
)

type Config struct {
	MaxPassages   int
	HistoryWindow int
}

func LoadConfig() *Config {
	return &Config{
		MaxPassages:   DefaultMaxPassages,
		HistoryWindow: DefaultHistoryWindow,
	}
}
