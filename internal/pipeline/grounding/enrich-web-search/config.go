// internal/pipeline/grounding/enrich-web-search/config.go
package enrichwebsearch

import "time"

const (
	DefaultBaseURL = "https://www.googleapis.com/customsearch/v1"

	// Google CSE returns at most ten items per request.
	maxProviderResults = 10
)

type Config struct {
	SearchAPIBaseURL string
	SearchAPIKey     string
	SearchEngineID   string
	Timeout          time.Duration
	MaxResults       int
	RateLimit        float64
	Burst            int
	CacheTTL         time.Duration
}

func LoadConfig() *Config {
	return &Config{
		SearchAPIBaseURL: DefaultBaseURL,
		Timeout:          10 * time.Second,
		MaxResults:       3,
		Burst:            1,
		CacheTTL:         time.Hour,
	}
}
