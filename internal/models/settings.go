package models

import "fmt"

// Settings are the per-session generation and grounding switches.
type Settings struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	RAGOn       bool    `json:"rag_on"`
	SearchOn    bool    `json:"search_on"`
}

func (s Settings) Validate() error {
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", s.Temperature)
	}
	if s.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	return nil
}
