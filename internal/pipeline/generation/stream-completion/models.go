// internal/pipeline/generation/stream-completion/models.go
package streamcompletion

import "github.com/sbgadvisor/WellNavigator2/internal/models"

type Request struct {
	Messages    []models.Message `json:"messages"`
	Model       string           `json:"model"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

// Usage is the accounting for one generation call.
type Usage struct {
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	Latency   float64 `json:"latency"` // seconds
	Cost      float64 `json:"cost"`
	Model     string  `json:"model"`
	Estimated bool    `json:"estimated"`
}

// Result is the terminal value of a stream. Text is the full reply, or the
// user-facing error message when Err is set.
type Result struct {
	Text      string `json:"text"`
	Usage     Usage  `json:"usage"`
	Cancelled bool   `json:"cancelled"`
	Err       error  `json:"-"`
}
