package domain

import "time"

// ConversationType distinguishes 1-1 conversations from groups
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation is the chat a call record belongs to.
// Maps to the conversations table; addressed by its row id.
type Conversation struct {
	ID        int64            `json:"id" db:"id"`
	Type      ConversationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// IsGroup reports whether this conversation is a group chat
func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationGroup
}

// ConversationParticipant is a member of a conversation; participant
// handles feed the free-text search over call history.
type ConversationParticipant struct {
	ConversationID int64     `json:"conversation_id" db:"conversation_id"`
	Handle         string    `json:"handle" db:"handle"`
	DisplayName    string    `json:"display_name" db:"display_name"`
	JoinedAt       time.Time `json:"joined_at" db:"joined_at"`
}
