package realtime

import "fmt"

// Channel and event names are part of the wire contract with clients.
const (
	PresenceChannel = "presence"

	EventNewMessage         = "new"
	EventConversationUpdate = "update"
	EventSeen               = "seen"
	EventStatusChange       = "status-change"
)

// ConversationChannel carries "new" and "seen" events for one conversation.
func ConversationChannel(conversationID int) string {
	return fmt.Sprintf("conversation:%d", conversationID)
}

// UserConversationsChannel carries "update" events for one user's inbox.
func UserConversationsChannel(userID int) string {
	return fmt.Sprintf("user:%d:conversations", userID)
}

// Event is the envelope published on every channel.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
