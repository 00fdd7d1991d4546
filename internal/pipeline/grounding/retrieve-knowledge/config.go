// internal/pipeline/grounding/retrieve-knowledge/config.go
package retrieveknowledge

import "time"

const (
	BackendBundle        = "bundle"
	BackendElasticsearch = "elasticsearch"

	// MaxContextPassages is the upper bound on passages returned per query.
	MaxContextPassages = 5
)

type Config struct {
	Backend     string
	IndexDir    string
	ESIndex     string
	MaxPassages int
	Timeout     time.Duration

	// Embedding model and dimension for the elasticsearch backend. The
	// bundle backend reads both from model_info.json.
	EmbeddingModel string
	EmbeddingDim   int
}

func LoadConfig() *Config {
	return &Config{
		Backend:     BackendBundle,
		IndexDir:    "data/index",
		ESIndex:     "health_passages",
		MaxPassages: MaxContextPassages,
		Timeout:     10 * time.Second,

		EmbeddingModel: "text-embedding-3-small",
		EmbeddingDim:   384,
	}
}

func (c *Config) limit(k int) int {
	max := c.MaxPassages
	if max <= 0 || max > MaxContextPassages {
		max = MaxContextPassages
	}
	if k <= 0 || k > max {
		return max
	}
	return k
}
