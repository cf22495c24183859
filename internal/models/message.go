package models

import (
	"time"

	"github.com/lib/pq"
)

// Message is a single entry in a conversation. Content is immutable after
// creation; only the seen set grows.
type Message struct {
	ID              int           `db:"id" json:"id"`
	ConversationID  int           `db:"conversation_id" json:"conversation_id"`
	SenderID        int           `db:"sender_id" json:"sender_id"`
	Content         string        `db:"content" json:"content"`
	Image           *string       `db:"image" json:"image,omitempty"`
	ClientMessageID string        `db:"client_message_id" json:"client_message_id"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	SeenIDs         pq.Int64Array `db:"seen_ids" json:"seen_ids"`
	SenderName      string        `db:"sender_name" json:"sender_name,omitempty"`
	SenderImage     *string       `db:"sender_image" json:"sender_image,omitempty"`
}

// SeenBy reports whether the user is already in the message's seen set.
func (m Message) SeenBy(userID int) bool {
	for _, id := range m.SeenIDs {
		if int(id) == userID {
			return true
		}
	}
	return false
}
