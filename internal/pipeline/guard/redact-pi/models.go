// internal/pipeline/guard/redact-pi/models.go
package redactpi

// Kind names a category of personal identifier.
type Kind string

const (
	KindSSN   Kind = "ssn"
	KindCard  Kind = "card"
	KindPhone Kind = "phone"
	KindEmail Kind = "email"
)

type Input struct {
	Text string `json:"text"`
}

type Output struct {
	Text     string       `json:"text"`
	Redacted bool         `json:"redacted"`
	Counts   map[Kind]int `json:"counts,omitempty"`
}
