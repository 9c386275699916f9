package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/segmentio/fasthash/fnv1a"
)

// shardCount spreads topics over independently locked maps so that publishing
// to one busy chat does not serialize every other topic.
const shardCount = 32

// DefaultBuffer is the per-subscriber channel size.
const DefaultBuffer = 64

type hubShard struct {
	sync.RWMutex
	topics map[string]map[uint64]chan Event
}

// Hub is an in-process Broker.
type Hub struct {
	shards [shardCount]*hubShard
	buffer int
	nextID atomic.Uint64
	closed atomic.Bool
	logger *slog.Logger
}

var _ Broker = (*Hub)(nil)

// NewHub creates a Hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	h := &Hub{buffer: buffer, logger: logger}
	for i := range h.shards {
		h.shards[i] = &hubShard{topics: make(map[string]map[uint64]chan Event)}
	}
	return h
}

func (h *Hub) shard(topic string) *hubShard {
	return h.shards[fnv1a.HashString32(topic)%shardCount]
}

// Subscribe registers a subscriber on topic. The channel is closed when the
// subscription is closed or the subscriber is dropped for being too slow.
func (h *Hub) Subscribe(topic string) *Subscription {
	ch := make(chan Event, h.buffer)
	id := h.nextID.Add(1)
	s := h.shard(topic)

	// Close marks the hub before sweeping the shards, so checking under the
	// shard lock means either Close sees this subscriber or we see Close.
	s.Lock()
	if h.closed.Load() {
		s.Unlock()
		close(ch)
		return &Subscription{C: ch, Topic: topic}
	}
	subs, ok := s.topics[topic]
	if !ok {
		subs = make(map[uint64]chan Event)
		s.topics[topic] = subs
	}
	subs[id] = ch
	s.Unlock()

	return &Subscription{
		C:     ch,
		Topic: topic,
		close: func() { h.remove(topic, id) },
	}
}

// Publish delivers ev to every current subscriber of ev.Topic without blocking.
// Subscribers whose buffer is full are dropped.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	s := h.shard(ev.Topic)

	var slow []uint64
	s.RLock()
	for id, ch := range s.topics[ev.Topic] {
		select {
		case ch <- ev:
		default:
			slow = append(slow, id)
		}
	}
	s.RUnlock()

	for _, id := range slow {
		h.logger.Warn("dropping slow realtime subscriber", slog.String("topic", ev.Topic))
		h.remove(ev.Topic, id)
	}
	return nil
}

// Subscribers returns the number of subscribers of topic.
func (h *Hub) Subscribers(topic string) int {
	s := h.shard(topic)
	s.RLock()
	defer s.RUnlock()
	return len(s.topics[topic])
}

// remove unregisters and closes one subscriber. Only the goroutine that deletes
// the map entry closes the channel, so it is closed exactly once.
func (h *Hub) remove(topic string, id uint64) {
	s := h.shard(topic)
	s.Lock()
	defer s.Unlock()

	subs := s.topics[topic]
	ch, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(s.topics, topic)
	}
	close(ch)
}

// Close closes every subscription. Later subscriptions receive a closed channel.
func (h *Hub) Close() error {
	h.closed.Store(true)
	for _, s := range h.shards {
		s.Lock()
		for topic, subs := range s.topics {
			for _, ch := range subs {
				close(ch)
			}
			delete(s.topics, topic)
		}
		s.Unlock()
	}
	return nil
}

// Subscription is one subscriber's view of a topic.
type Subscription struct {
	// C receives events; it is closed when the subscription ends.
	C     <-chan Event
	Topic string

	once    sync.Once
	close   func()
	onClose []func()
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.close != nil {
			s.close()
		}
		for _, fn := range s.onClose {
			fn()
		}
	})
}

// afterClose registers fn to run once when the subscription is closed.
func (s *Subscription) afterClose(fn func()) {
	s.onClose = append(s.onClose, fn)
}
