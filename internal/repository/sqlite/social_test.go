package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/repository"
)

func friendRequest(from, to *model.User) *model.Notification {
	return &model.Notification{
		RecipientID: to.ID,
		Type:        model.FriendRequest,
		SenderID:    from.ID,
		SenderName:  from.DisplayName,
		Message:     from.DisplayName + " sent you a friend request",
	}
}

func TestNotifications_CreateListRead(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "ash")
	b := createTestUser(t, db, "brock")

	n := friendRequest(a, b)
	require.NoError(t, db.CreateNotification(ctx, n))
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, model.StatusPending, n.Status)

	pending, err := db.HasPendingRequest(ctx, model.FriendRequest, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	pending, err = db.HasPendingRequest(ctx, model.FriendRequest, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, pending, "direction matters")

	list, err := db.ListNotifications(ctx, b.ID, true, 50)
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Only the recipient can mark it read.
	err = db.MarkNotificationRead(ctx, a.ID, n.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	require.NoError(t, db.MarkNotificationRead(ctx, b.ID, n.ID))

	list, err = db.ListNotifications(ctx, b.ID, true, 50)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestResolveRequest_FriendRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "ash")
	b := createTestUser(t, db, "brock")

	n := friendRequest(a, b)
	require.NoError(t, db.CreateNotification(ctx, n))

	err := db.ResolveRequest(ctx, repository.Resolution{
		NotificationID: n.ID,
		RecipientID:    b.ID,
		Status:         model.StatusAccepted,
		Befriend:       []string{a.ID, b.ID},
		Ack: &model.Notification{
			RecipientID: a.ID,
			Type:        model.FriendRequestAccepted,
			SenderID:    b.ID,
			SenderName:  b.DisplayName,
		},
	})
	require.NoError(t, err)

	for _, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
		ok, err := db.AreFriends(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, ok)
	}

	got, err := db.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
	assert.True(t, got.Read)

	acks, err := db.ListNotifications(ctx, a.ID, false, 50)
	require.NoError(t, err)
	require.Len(t, acks, 1)
	assert.Equal(t, model.FriendRequestAccepted, acks[0].Type)

	// A second answer is rejected and changes nothing.
	err = db.ResolveRequest(ctx, repository.Resolution{
		NotificationID: n.ID,
		RecipientID:    b.ID,
		Status:         model.StatusDeclined,
	})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	got, err = db.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
}

func TestResolveRequest_RollsBackOnFailure(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "ash")
	b := createTestUser(t, db, "brock")

	n := friendRequest(a, b)
	require.NoError(t, db.CreateNotification(ctx, n))

	// The trade does not exist, so the trade update affects no rows and the
	// whole resolution must roll back, including the status change.
	err := db.ResolveRequest(ctx, repository.Resolution{
		NotificationID: n.ID,
		RecipientID:    b.ID,
		Status:         model.StatusAccepted,
		Befriend:       []string{a.ID, b.ID},
		TradeID:        "missing-trade",
		TradeStatus:    model.TradeAccepted,
	})
	require.Error(t, err)

	got, err := db.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	ok, err := db.AreFriends(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveFriendship(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "ash")
	b := createTestUser(t, db, "brock")

	n := friendRequest(a, b)
	require.NoError(t, db.CreateNotification(ctx, n))
	require.NoError(t, db.ResolveRequest(ctx, repository.Resolution{
		NotificationID: n.ID, RecipientID: b.ID, Status: model.StatusAccepted, Befriend: []string{a.ID, b.ID},
	}))

	count, err := db.CountFriends(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	friends, err := db.ListFriends(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, a.ID, friends[0].ID)

	require.NoError(t, db.RemoveFriendship(ctx, b.ID, a.ID))
	for _, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
		ok, err := db.AreFriends(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.False(t, ok)
	}

	err = db.RemoveFriendship(ctx, a.ID, b.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
