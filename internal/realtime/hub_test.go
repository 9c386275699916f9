package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(buffer int) *Hub {
	return NewHub(buffer, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func mustEvent(t *testing.T, topic string, v any) Event {
	t.Helper()
	ev, err := NewEvent(topic, TypeMessage, v)
	require.NoError(t, err)
	return ev
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed unexpectedly")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHub_FanOut(t *testing.T) {
	h := newTestHub(8)
	ctx := context.Background()

	a := h.Subscribe(ChatTopic("c1"))
	b := h.Subscribe(ChatTopic("c1"))
	other := h.Subscribe(ChatTopic("c2"))
	defer a.Close()
	defer b.Close()
	defer other.Close()

	require.NoError(t, h.Publish(ctx, mustEvent(t, ChatTopic("c1"), map[string]string{"text": "hi"})))

	for _, sub := range []*Subscription{a, b} {
		ev := receive(t, sub)
		assert.Equal(t, "chat:c1", ev.Topic)
		assert.JSONEq(t, `{"text":"hi"}`, string(ev.Data))
	}

	select {
	case ev := <-other.C:
		t.Fatalf("other topic received %v", ev)
	default:
	}
}

func TestHub_PreservesOrderPerSubscriber(t *testing.T) {
	h := newTestHub(100)
	sub := h.Subscribe(UserTopic("u1"))
	defer sub.Close()

	for i := 0; i < 50; i++ {
		require.NoError(t, h.Publish(context.Background(), mustEvent(t, UserTopic("u1"), i)))
	}
	for i := 0; i < 50; i++ {
		ev := receive(t, sub)
		assert.Equal(t, fmt.Sprint(i), string(ev.Data))
	}
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	h := newTestHub(2)
	topic := ChatTopic("busy")

	slow := h.Subscribe(topic)
	fast := h.Subscribe(topic)
	defer fast.Close()

	var got []Event
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Publish(context.Background(), mustEvent(t, topic, i)))
		got = append(got, receive(t, fast))
	}
	assert.Len(t, got, 3)

	// slow never read: its two buffered events are still there, then the channel is closed.
	n := 0
	for range slow.C {
		n++
	}
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, h.Subscribers(topic))

	slow.Close() // closing a dropped subscription is harmless
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	h := newTestHub(1)
	sub := h.Subscribe("t")

	calls := 0
	sub.afterClose(func() { calls++ })

	sub.Close()
	sub.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, h.Subscribers("t"))
}

func TestHub_Close(t *testing.T) {
	h := newTestHub(1)
	sub := h.Subscribe("t")
	require.NoError(t, h.Close())

	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Close()

	late := h.Subscribe("t")
	_, ok = <-late.C
	assert.False(t, ok, "subscribing after Close yields a closed channel")
}

func TestHub_ConcurrentPublishSubscribe(t *testing.T) {
	h := newTestHub(DefaultBuffer)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		topic := ChatTopic(fmt.Sprint(i % 4))
		go func() {
			defer wg.Done()
			sub := h.Subscribe(topic)
			defer sub.Close()
			for j := 0; j < 10; j++ {
				select {
				case <-sub.C:
				case <-time.After(10 * time.Millisecond):
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = h.Publish(ctx, Event{Type: TypeMessage, Topic: topic})
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		assert.Equal(t, 0, h.Subscribers(ChatTopic(fmt.Sprint(i))))
	}
}

func TestHub_SubscribeRacingClose(t *testing.T) {
	for round := 0; round < 50; round++ {
		h := newTestHub(1)

		subs := make(chan *Subscription, 64)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for j := 0; j < 8; j++ {
					subs <- h.Subscribe(ChatTopic(fmt.Sprint(i)))
				}
			}(i)
		}
		require.NoError(t, h.Close())
		wg.Wait()
		close(subs)

		for sub := range subs {
			select {
			case _, ok := <-sub.C:
				assert.False(t, ok, "every subscription ends once the hub is closed")
			case <-time.After(time.Second):
				t.Fatalf("subscription to %s was left open after Close", sub.Topic)
			}
		}
	}
}
