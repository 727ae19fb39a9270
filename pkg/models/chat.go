// Package models contains domain types for concierge-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatRole represents the role of a chat message sender.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// IsValidChatRole checks if the given role is valid.
func IsValidChatRole(r ChatRole) bool {
	return r == ChatRoleUser || r == ChatRoleAssistant
}

// DefaultSessionTitle names a session until its first question arrives.
const DefaultSessionTitle = "New conversation"

// ChatSession is one guest conversation.
type ChatSession struct {
	ID        uuid.UUID `json:"session_id"`
	OrgID     uuid.UUID `json:"org_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// MessageCount is filled by list queries only.
	MessageCount int `json:"message_count,omitempty"`
}

// ChatMessage is a single turn in a session.
type ChatMessage struct {
	ID        uuid.UUID `json:"message_id"`
	SessionID uuid.UUID `json:"session_id"`
	OrgID     uuid.UUID `json:"-"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
