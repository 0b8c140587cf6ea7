package models

import (
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is the unified inbound/outbound message format across transports.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	ChatName  string    `json:"chat_name,omitempty"`
	Sender    string    `json:"sender"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Chat is a transport conversation known to the message store.
type Chat struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	LastActivityAt time.Time `json:"last_activity_at"`
}
