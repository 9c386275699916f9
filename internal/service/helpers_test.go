package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/realtime"
	"github.com/sakif/poketrade/internal/repository/sqlite"
)

// fixture wires every service to one in-memory database and an in-process hub.
type fixture struct {
	db          *sqlite.DB
	hub         *realtime.Hub
	collections *CollectionService
	social      *SocialService
	trades      *TradeService
	chats       *ChatService
	profiles    *ProfileService

	users int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := realtime.NewHub(realtime.DefaultBuffer, testLogger())
	t.Cleanup(func() { hub.Close() })

	logger := testLogger()
	return &fixture{
		db:          db,
		hub:         hub,
		collections: NewCollectionService(db, db, logger),
		social:      NewSocialService(db, db, db, db, db, hub, logger),
		trades:      NewTradeService(db, db, db, hub, logger),
		chats:       NewChatService(db, db, db, db, hub, logger),
		profiles:    NewProfileService(db, db, db, nil, logger),
	}
}

func (f *fixture) user(t *testing.T, name string) *model.User {
	t.Helper()
	f.users++
	u := &model.User{
		Email:       fmt.Sprintf("%s%d@example.com", name, f.users),
		DisplayName: name,
		FriendCode:  fmt.Sprintf("CODE%06d", f.users),
	}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) stock(t *testing.T, userID, cardID, name string, qty int) {
	t.Helper()
	_, err := f.collections.AddCard(context.Background(), userID, model.Inventory, card(cardID, name), qty)
	require.NoError(t, err)
}

// befriend sends a friend request from a to b and accepts it.
func (f *fixture) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	req, err := f.social.SendFriendRequest(ctx, a, b)
	require.NoError(t, err)
	_, err = f.social.Respond(ctx, b, req.ID, model.Accept)
	require.NoError(t, err)
}

func card(id, name string) model.Card {
	return model.Card{
		ID:      id,
		Name:    name,
		Image:   "https://images.example.com/" + id + ".png",
		Rarity:  "Common",
		SetID:   "sv1",
		SetName: "Scarlet & Violet",
	}
}

// nextEvent waits for one event on sub.
func nextEvent(t *testing.T, sub *realtime.Subscription) realtime.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a live event")
		return realtime.Event{}
	}
}

func noEvent(t *testing.T, sub *realtime.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected live event %s on %s", ev.Type, ev.Topic)
	case <-time.After(20 * time.Millisecond):
	}
}
