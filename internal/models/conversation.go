package models

import "time"

// Conversation is a message thread between two or more users. Direct
// conversations carry a normalized participant-pair key so the store can
// enforce at most one thread per pair.
type Conversation struct {
	ID            int       `db:"id" json:"id"`
	Name          *string   `db:"name" json:"name,omitempty"`
	IsGroup       bool      `db:"is_group" json:"is_group"`
	DirectKey     *string   `db:"direct_key" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	LastMessageAt time.Time `db:"last_message_at" json:"last_message_at"`
	UserIDs       []int     `db:"-" json:"user_ids,omitempty"`
}

// ConversationSummary is the inbox view of a conversation for one user.
type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"last_message,omitempty"`
}
