package observability

import (
	"context"

	"messaging-service/internal/rabbitmq"
)

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// EventsEmitter is the explicitly-constructed handle for publishing
// observability events. A nil emitter drops events.
type EventsEmitter struct {
	publisher rabbitmq.Publisher
}

// NewEventsEmitter wraps a rabbitmq publisher.
func NewEventsEmitter(publisher rabbitmq.Publisher) *EventsEmitter {
	return &EventsEmitter{publisher: publisher}
}

// Emit publishes the envelope, counting failures.
func (e *EventsEmitter) Emit(ctx context.Context, routingKey string, envelope EventEnvelope, headers map[string]string) error {
	if e == nil || e.publisher == nil {
		return nil
	}
	err := e.publisher.Publish(ctx, routingKey, envelope, headers)
	if err != nil {
		IncAMQPPublishError()
	}
	return err
}
