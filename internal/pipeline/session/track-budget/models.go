// internal/pipeline/session/track-budget/models.go
package trackbudget

// Level is the traffic-light state of a session budget.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelWarning  Level = "warning"
	LevelExceeded Level = "exceeded"
)

// SessionMetrics are the running totals for one session. They only grow
// until the session is cleared.
type SessionMetrics struct {
	TokensIn        int     `json:"tokens_in"`
	TokensOut       int     `json:"tokens_out"`
	Cost            float64 `json:"cost"`
	Requests        int     `json:"requests"`
	RAGRequests     int     `json:"rag_requests"`
	SearchRequests  int     `json:"search_requests"`
	RefusedRequests int     `json:"refused_requests"`
	LatencyTotal    float64 `json:"latency_total"`
	LatencySamples  int     `json:"latency_samples"`
}

func (m SessionMetrics) TotalTokens() int {
	return m.TokensIn + m.TokensOut
}

// AvgLatency is the mean latency in seconds over turns that reported one.
func (m SessionMetrics) AvgLatency() float64 {
	if m.LatencySamples == 0 {
		return 0
	}
	return m.LatencyTotal / float64(m.LatencySamples)
}

// Status is the budget verdict derived from SessionMetrics and the ceiling.
type Status struct {
	Exceeded    bool    `json:"exceeded"`
	Warning     bool    `json:"warning"`
	Remaining   int     `json:"remaining"`
	Percentage  float64 `json:"percentage"`
	TotalTokens int     `json:"total_tokens"`
	Ceiling     int     `json:"ceiling"`
	Message     string  `json:"message,omitempty"`
	Level       Level   `json:"level"`
}

// Usage is the session metrics view served to clients.
type Usage struct {
	TotalRequests   int     `json:"total_requests"`
	TotalTokensIn   int     `json:"total_tokens_in"`
	TotalTokensOut  int     `json:"total_tokens_out"`
	TotalTokens     int     `json:"total_tokens"`
	TotalCost       float64 `json:"total_cost"`
	AvgLatency      float64 `json:"avg_latency"`
	RAGRequests     int     `json:"rag_requests"`
	SearchRequests  int     `json:"search_requests"`
	RefusedRequests int     `json:"refused_requests"`
	Budget          Status  `json:"budget"`
	Summary         string  `json:"summary"`
}
