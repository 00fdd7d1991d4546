package models

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsConversational reports whether messages with this role belong in history.
func (r Role) IsConversational() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one entry of the prompt sent to the generation service.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
