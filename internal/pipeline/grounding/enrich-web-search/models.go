// internal/pipeline/grounding/enrich-web-search/models.go
package enrichwebsearch

type Input struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type Output struct {
	Results []Result `json:"results"`
	Query   string   `json:"query"`
	Stub    bool     `json:"stub"`
}

// Result is one search hit with its publisher already resolved.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// Status reports how the adapter is configured.
type Status struct {
	Configured   bool    `json:"configured"`
	APIKeySet    bool    `json:"api_key_set"`
	EngineIDSet  bool    `json:"cse_id_set"`
	CacheEnabled bool    `json:"cache_enabled"`
	RateLimit    float64 `json:"rate_limit"`
}
