package models

import "time"

// TurnMetadata is the per-turn accounting and audit record.
type TurnMetadata struct {
	Timestamp        time.Time  `json:"timestamp" db:"timestamp"`
	Model            string     `json:"model" db:"model"`
	Temperature      float64    `json:"temperature" db:"temperature"`
	TokensIn         int        `json:"tokens_in" db:"tokens_in"`
	TokensOut        int        `json:"tokens_out" db:"tokens_out"`
	Cost             float64    `json:"cost" db:"cost"`
	Latency          float64    `json:"latency" db:"latency"` // seconds
	RAGUsed          bool       `json:"rag_used" db:"rag_used"`
	RAGDocsRetrieved int        `json:"rag_docs_retrieved" db:"rag_docs_retrieved"`
	SearchUsed       bool       `json:"search_used" db:"search_used"`
	SearchResults    int        `json:"search_results" db:"search_results"`
	Redacted         bool       `json:"redacted" db:"redacted"`
	Refused          bool       `json:"refused" db:"refused"`
	RefusalCategory  string     `json:"refusal_category,omitempty" db:"refusal_category"`
	BudgetBlocked    bool       `json:"budget_blocked,omitempty" db:"budget_blocked"`
	Cancelled        bool       `json:"cancelled,omitempty" db:"cancelled"`
	Error            bool       `json:"error,omitempty" db:"error"`
	Citations        []Citation `json:"citations,omitempty" db:"-"`
}

// TotalTokens is input plus output tokens.
func (m TurnMetadata) TotalTokens() int {
	return m.TokensIn + m.TokensOut
}

// Turn is one message in a session transcript. Turns are immutable once appended.
type Turn struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Meta      *TurnMetadata `json:"meta,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Message converts the turn to a prompt message.
func (t Turn) Message() Message {
	return Message{Role: t.Role, Content: t.Content}
}
