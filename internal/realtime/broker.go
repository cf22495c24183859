package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Broker publishes realtime events to named channels. Delivery is
// best-effort: a publish failure after persistence must not fail the
// request that triggered it.
type Broker interface {
	Publish(ctx context.Context, channel string, event string, data any) error
	Close() error
}

// RedisBroker publishes events over Redis pub/sub so subscribers in other
// processes receive them.
type RedisBroker struct {
	client *redis.Client
}

// NewRedisBroker connects to Redis and verifies the connection.
func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisBroker{client: client}, nil
}

// Publish sends the event envelope to the channel.
func (b *RedisBroker) Publish(ctx context.Context, channel string, event string, data any) error {
	payload, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

// Close releases the Redis connection.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

// NewBroker builds a Redis broker or a noop broker when Redis is not
// configured or unreachable.
func NewBroker(redisURL string) Broker {
	if redisURL == "" {
		log.Printf("redis disabled, using noop broker: empty redis url")
		return noopBroker{reason: "empty redis url"}
	}
	broker, err := NewRedisBroker(redisURL)
	if err != nil {
		log.Printf("redis disabled, using noop broker: %v", err)
		return noopBroker{reason: err.Error()}
	}
	log.Printf("redis broker connected")
	return broker
}

type noopBroker struct {
	reason string
}

func (noopBroker) Publish(ctx context.Context, channel string, event string, data any) error {
	log.Printf("realtime noop publish channel=%s event=%s", channel, event)
	return nil
}

func (noopBroker) Close() error {
	return nil
}

// Multi fans a publish out to several brokers, typically the Redis broker
// plus the in-process websocket hub. All brokers are attempted even when
// one fails.
func Multi(brokers ...Broker) Broker {
	return multiBroker(brokers)
}

type multiBroker []Broker

func (m multiBroker) Publish(ctx context.Context, channel string, event string, data any) error {
	var errs []error
	for _, b := range m {
		if err := b.Publish(ctx, channel, event, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multiBroker) Close() error {
	var errs []error
	for _, b := range m {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
