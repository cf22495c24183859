package models

import "time"

// ConversationUpdate is pushed on a participant's personal channel when a
// conversation receives a new message.
type ConversationUpdate struct {
	ID       int       `json:"id"`
	Messages []Message `json:"messages"`
}

// SeenEvent is pushed on the conversation channel after a mark-seen write.
type SeenEvent struct {
	ConversationID int   `json:"conversation_id"`
	UserID         int   `json:"user_id"`
	MessageIDs     []int `json:"message_ids"`
}

// StatusChange is pushed on the shared presence channel.
type StatusChange struct {
	UserID    int       `json:"user_id"`
	IsOnline  bool      `json:"is_online"`
	Timestamp time.Time `json:"timestamp"`
}
