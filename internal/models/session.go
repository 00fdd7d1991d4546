package models

import "time"

// SessionInfo is the externally visible summary of a chat session.
type SessionInfo struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	TurnCount    int       `json:"turnCount"`
	Settings     Settings  `json:"settings"`
}

// IsExpired checks if the session has been idle longer than ttl
func (s *SessionInfo) IsExpired(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(s.LastActivity) > ttl
}
