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

func createTestTrade(t *testing.T, db *DB, from, to *model.User) (*model.Trade, *model.Notification) {
	t.Helper()
	trade := &model.Trade{
		InitiatorID: from.ID,
		TargetID:    to.ID,
		TargetCard:  model.TradeCard{CardID: "sv1-25", Name: "Pikachu", Quantity: 1},
		Offered: []model.TradeCard{
			{CardID: "sv1-1", Name: "Bulbasaur", Quantity: 2},
			{CardID: "sv1-4", Name: "Charmander", Quantity: 1},
		},
	}
	req := &model.Notification{
		RecipientID: to.ID,
		Type:        model.TradeRequest,
		SenderID:    from.ID,
		SenderName:  from.DisplayName,
	}
	require.NoError(t, db.CreateTrade(context.Background(), trade, req))
	return trade, req
}

func TestCreateTrade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "ash")
	b := createTestUser(t, db, "brock")

	trade, req := createTestTrade(t, db, a, b)
	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, model.TradePending, trade.Status)
	assert.Equal(t, trade.ID, req.RefID)

	got, err := db.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, "sv1-25", got.TargetCard.CardID)
	require.Len(t, got.Offered, 2)
	assert.Equal(t, "sv1-1", got.Offered[0].CardID)
	assert.Equal(t, 2, got.Offered[0].Quantity)

	// Both sides see the trade in their list.
	for _, u := range []*model.User{a, b} {
		list, err := db.ListTrades(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Len(t, list[0].Offered, 2)
	}

	notes, err := db.ListNotifications(ctx, b.ID, false, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, model.TradeRequest, notes[0].Type)
}

func TestGetTrade_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetTrade(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestResolveTradeRequest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "ash")
	b := createTestUser(t, db, "brock")
	trade, req := createTestTrade(t, db, a, b)

	require.NoError(t, db.ResolveRequest(ctx, repository.Resolution{
		NotificationID: req.ID,
		RecipientID:    b.ID,
		Status:         model.StatusAccepted,
		TradeID:        trade.ID,
		TradeStatus:    model.TradeAccepted,
	}))

	got, err := db.GetTrade(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TradeAccepted, got.Status)

	n, err := db.CountAcceptedTrades(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRateTrade(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db, "ash")
	b := createTestUser(t, db, "brock")
	c := createTestUser(t, db, "misty")

	t1, _ := createTestTrade(t, db, a, b)
	t2, _ := createTestTrade(t, db, c, b)

	rating, err := db.RateTrade(ctx, t1.ID, a.ID, b.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, rating)

	rating, err = db.RateTrade(ctx, t2.ID, c.ID, b.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4.5, rating)

	got, err := db.GetUserByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, got.Rating)
	assert.Equal(t, 2, got.RatingCount)

	_, err = db.RateTrade(ctx, t1.ID, a.ID, b.ID, 1)
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}
