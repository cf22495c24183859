package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "conversation:12", ConversationChannel(12))
	assert.Equal(t, "user:7:conversations", UserConversationsChannel(7))
	assert.Equal(t, "presence", PresenceChannel)
}
