package ws

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// channelKind maps a channel name to its metric label.
func channelKind(channel string) string {
	switch {
	case strings.HasPrefix(channel, "conversation:"):
		return "conversation"
	case strings.HasPrefix(channel, "user:"):
		return "user"
	default:
		return "presence"
	}
}

func wsRoutingKey(kind string) string {
	switch kind {
	case "conversation":
		return "ws_events.conversations"
	case "user":
		return "ws_events.users"
	default:
		return "ws_events.presence"
	}
}
