// internal/pipeline/session/log-turn/models.go
package logturn

// Record is one line of a daily turn log file.
type Record struct {
	Timestamp        float64 `json:"timestamp"` // unix seconds
	Datetime         string  `json:"datetime"`
	TokensIn         int     `json:"tokens_in"`
	TokensOut        int     `json:"tokens_out"`
	TotalTokens      int     `json:"total_tokens"`
	Latency          float64 `json:"latency"`
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	RAGUsed          bool    `json:"rag_used"`
	RAGDocsRetrieved int     `json:"rag_docs_retrieved"`
	SearchUsed       bool    `json:"search_used"`
	SearchResults    int     `json:"search_results"`
	Cost             float64 `json:"cost"`
	Redacted         bool    `json:"redacted"`
	Refused          bool    `json:"refused"`
	RefusalCategory  string  `json:"refusal_category,omitempty"`
	BudgetBlocked    bool    `json:"budget_blocked,omitempty"`
	Cancelled        bool    `json:"cancelled,omitempty"`
	Error            bool    `json:"error,omitempty"`
	CitationsCount   int     `json:"citations_count"`
}

// Summary aggregates every daily file in the log directory.
type Summary struct {
	TotalTurns  int     `json:"total_turns"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
	AvgLatency  float64 `json:"avg_latency"`
	UniqueDays  int     `json:"unique_days"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Export is the document written by Handler.Export.
type Export struct {
	DateRange   DateRange `json:"date_range"`
	TotalTurns  int       `json:"total_turns"`
	TotalTokens int       `json:"total_tokens"`
	TotalCost   float64   `json:"total_cost"`
	AvgLatency  float64   `json:"avg_latency"`
	ModelsUsed  []string  `json:"models_used"`
	RAGUsage    int       `json:"rag_usage"`
	SearchUsage int       `json:"search_usage"`
	Refusals    int       `json:"refusals"`
	Turns       []Record  `json:"turns"`
}
