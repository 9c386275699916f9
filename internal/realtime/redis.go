package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-redis/redis/v8"
)

// RedisBroker lets several server instances share topics. Publish goes to the
// Redis channel named after the topic; every instance that has local
// subscribers on that topic is subscribed to the channel and relays what it
// receives into its own Hub. Events published by this instance come back
// through Redis too, so Publish does not deliver locally.
type RedisBroker struct {
	client *redis.Client
	pubsub *redis.PubSub
	hub    *Hub
	logger *slog.Logger

	// mu guards refs and orders the channel (un)subscribe calls with them, so
	// a late unsubscribe never lands after a newer subscribe to the same topic.
	mu       sync.Mutex
	refs     map[string]int
	channels channelSubscriber

	done chan struct{}
}

var _ Broker = (*RedisBroker)(nil)

// channelSubscriber is the part of *redis.PubSub that follows the local refcounts.
type channelSubscriber interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
}

// NewRedisBroker connects to redisURL (redis://[:password@]host:port/db).
func NewRedisBroker(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("realtime: parsing REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("realtime: connecting to redis: %w", err)
	}

	pubsub := client.Subscribe(ctx)
	b := &RedisBroker{
		client:   client,
		pubsub:   pubsub,
		hub:      NewHub(DefaultBuffer, logger),
		logger:   logger,
		refs:     make(map[string]int),
		channels: pubsub,
		done:     make(chan struct{}),
	}
	go b.relay()
	return b, nil
}

// relay copies messages from Redis into the local hub until the pubsub closes.
func (b *RedisBroker) relay() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.logger.Warn("dropping malformed realtime frame",
				slog.String("channel", msg.Channel),
				slog.String("error", err.Error()),
			)
			continue
		}
		ev.Topic = msg.Channel
		_ = b.hub.Publish(context.Background(), ev)
	}
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encoding event: %w", err)
	}
	if err := b.client.Publish(ctx, ev.Topic, payload).Err(); err != nil {
		return fmt.Errorf("realtime: publishing to %s: %w", ev.Topic, err)
	}
	return nil
}

// Subscribe subscribes the shared Redis connection to topic on the first local
// subscriber and unsubscribes it when the last one closes.
func (b *RedisBroker) Subscribe(topic string) *Subscription {
	sub := b.hub.Subscribe(topic)

	b.mu.Lock()
	b.refs[topic]++
	if b.refs[topic] == 1 {
		if err := b.channels.Subscribe(context.Background(), topic); err != nil {
			b.logger.Error("redis subscribe failed", slog.String("topic", topic), slog.String("error", err.Error()))
		}
	}
	b.mu.Unlock()

	sub.afterClose(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		b.refs[topic]--
		if b.refs[topic] > 0 {
			return
		}
		delete(b.refs, topic)
		if err := b.channels.Unsubscribe(context.Background(), topic); err != nil {
			b.logger.Warn("redis unsubscribe failed", slog.String("topic", topic), slog.String("error", err.Error()))
		}
	})
	return sub
}

// Close stops relaying, closes local subscriptions and the Redis client.
func (b *RedisBroker) Close() error {
	err := b.pubsub.Close()
	<-b.done
	_ = b.hub.Close()
	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	return err
}
