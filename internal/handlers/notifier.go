package handlers

import (
	"context"
	"log"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/realtime"
)

// DeliveryReport records the outcome of the best-effort publishes that
// follow a successful store write. A stored message whose notifications
// partially failed is still a success for the caller; the report exists so
// observability can tell the two apart.
type DeliveryReport struct {
	Persisted      bool
	NotifyFailures []string
}

// FullyNotified reports whether every publish went through.
func (r DeliveryReport) FullyNotified() bool {
	return r.Persisted && len(r.NotifyFailures) == 0
}

// Notifier fans realtime events out to conversation and personal channels.
type Notifier struct {
	broker realtime.Broker
}

// NewNotifier constructs a Notifier.
func NewNotifier(broker realtime.Broker) *Notifier {
	return &Notifier{broker: broker}
}

// NotifyNewMessage publishes "new" on the conversation channel and
// "update" on every participant's personal channel except the sender's.
// Fan-out is at-least-once best-effort; a mid-loop failure does not stop
// the remaining publishes.
func (n *Notifier) NotifyNewMessage(ctx context.Context, conv models.Conversation, msg models.Message) DeliveryReport {
	report := DeliveryReport{Persisted: true}

	if err := n.broker.Publish(ctx, realtime.ConversationChannel(conv.ID), realtime.EventNewMessage, msg); err != nil {
		log.Printf("realtime publish failed channel=%s event=%s: %v", realtime.ConversationChannel(conv.ID), realtime.EventNewMessage, err)
		observability.IncRealtimePublishFailure(realtime.EventNewMessage)
		report.NotifyFailures = append(report.NotifyFailures, realtime.EventNewMessage)
	}

	update := models.ConversationUpdate{ID: conv.ID, Messages: []models.Message{msg}}
	for _, userID := range conv.UserIDs {
		if userID == msg.SenderID {
			continue
		}
		channel := realtime.UserConversationsChannel(userID)
		if err := n.broker.Publish(ctx, channel, realtime.EventConversationUpdate, update); err != nil {
			log.Printf("realtime publish failed channel=%s event=%s: %v", channel, realtime.EventConversationUpdate, err)
			observability.IncRealtimePublishFailure(realtime.EventConversationUpdate)
			report.NotifyFailures = append(report.NotifyFailures, realtime.EventConversationUpdate)
		}
	}
	return report
}

// NotifySeen publishes a read-receipt event on the conversation channel.
func (n *Notifier) NotifySeen(ctx context.Context, event models.SeenEvent) {
	if err := n.broker.Publish(ctx, realtime.ConversationChannel(event.ConversationID), realtime.EventSeen, event); err != nil {
		log.Printf("realtime publish failed channel=%s event=%s: %v", realtime.ConversationChannel(event.ConversationID), realtime.EventSeen, err)
		observability.IncRealtimePublishFailure(realtime.EventSeen)
	}
}

// NotifyStatusChange publishes a presence transition on the shared channel.
func (n *Notifier) NotifyStatusChange(ctx context.Context, change models.StatusChange) {
	if err := n.broker.Publish(ctx, realtime.PresenceChannel, realtime.EventStatusChange, change); err != nil {
		log.Printf("realtime publish failed channel=%s event=%s: %v", realtime.PresenceChannel, realtime.EventStatusChange, err)
		observability.IncRealtimePublishFailure(realtime.EventStatusChange)
	}
}
