package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/realtime"
	"github.com/sakif/poketrade/internal/repository"
)

const (
	MinRating = 1
	MaxRating = 5
)

// CardQuantity names a card and how many copies of it change hands.
type CardQuantity struct {
	CardID   string `json:"cardId" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// TradeProposal is what the initiator asks for and what they give in return.
type TradeProposal struct {
	TargetID   string         `json:"targetId" validate:"required"`
	TargetCard CardQuantity   `json:"targetCard"`
	Offered    []CardQuantity `json:"offered" validate:"required,min=1,dive"`
}

// TradeService proposes, lists and rates trades. Trades are answered through
// SocialService.Respond like every other request.
//
// Accepting a trade does not move cards between inventories. Both users keep
// their collections until they edit them themselves.
type TradeService struct {
	users       repository.UserRepository
	collections repository.CollectionRepository
	trades      repository.TradeRepository
	pub         realtime.Publisher
	logger      *slog.Logger
}

func NewTradeService(
	users repository.UserRepository,
	collections repository.CollectionRepository,
	trades repository.TradeRepository,
	pub realtime.Publisher,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		users:       users,
		collections: collections,
		trades:      trades,
		pub:         pub,
		logger:      logger,
	}
}

// CreateTrade records a pending trade and sends the target a trade_request.
// Every card must be in its owner's inventory with enough copies.
func (s *TradeService) CreateTrade(ctx context.Context, initiatorID string, p TradeProposal) (*model.Trade, error) {
	if err := requireUser(initiatorID); err != nil {
		return nil, err
	}
	if p.TargetID == initiatorID {
		return nil, apperror.ValidationFailed("targetId", "You cannot trade with yourself")
	}
	if p.TargetCard.CardID == "" || p.TargetCard.Quantity <= 0 {
		return nil, apperror.ValidationFailed("targetCard", "Please pick a card and a quantity")
	}
	if len(p.Offered) == 0 {
		return nil, apperror.ValidationFailed("offered", "Offer at least one card")
	}
	seen := make(map[string]bool, len(p.Offered))
	for _, c := range p.Offered {
		if c.CardID == "" || c.Quantity <= 0 {
			return nil, apperror.ValidationFailed("offered", "Every offered card needs a quantity")
		}
		if seen[c.CardID] {
			return nil, apperror.ValidationFailed("offered", fmt.Sprintf("Card %s is offered twice", c.CardID))
		}
		seen[c.CardID] = true
	}

	initiator, err := s.users.GetUserByID(ctx, initiatorID)
	if err != nil {
		return nil, fmt.Errorf("service/trade: fetching initiator %s: %w", initiatorID, err)
	}
	if _, err := s.users.GetUserByID(ctx, p.TargetID); err != nil {
		return nil, fmt.Errorf("service/trade: fetching target %s: %w", p.TargetID, err)
	}

	theirs, err := s.collections.GetCollection(ctx, p.TargetID, model.Inventory)
	if err != nil {
		return nil, fmt.Errorf("service/trade: reading target inventory: %w", err)
	}
	target, ok := theirs.Find(p.TargetCard.CardID)
	if !ok || target.Quantity < p.TargetCard.Quantity {
		return nil, apperror.ValidationFailed("targetCard", "They do not have enough copies of that card")
	}

	mine, err := s.collections.GetCollection(ctx, initiatorID, model.Inventory)
	if err != nil {
		return nil, fmt.Errorf("service/trade: reading initiator inventory: %w", err)
	}
	offered := make([]model.TradeCard, 0, len(p.Offered))
	for _, c := range p.Offered {
		e, ok := mine.Find(c.CardID)
		if !ok || e.Quantity < c.Quantity {
			return nil, apperror.ValidationFailed("offered",
				fmt.Sprintf("You do not have %d copies of %s", c.Quantity, c.CardID))
		}
		offered = append(offered, tradeCard(e, c.Quantity))
	}

	trade := &model.Trade{
		InitiatorID: initiatorID,
		TargetID:    p.TargetID,
		TargetCard:  tradeCard(target, p.TargetCard.Quantity),
		Offered:     offered,
	}
	request := &model.Notification{
		RecipientID: p.TargetID,
		Type:        model.TradeRequest,
		SenderID:    initiatorID,
		SenderName:  initiator.DisplayName,
		Message:     fmt.Sprintf("%s wants to trade for your %s", initiator.DisplayName, target.Name),
	}
	if err := s.trades.CreateTrade(ctx, trade, request); err != nil {
		s.logger.Error("creating trade failed",
			slog.String("initiatorID", initiatorID),
			slog.String("targetID", p.TargetID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/trade: creating trade: %w", err)
	}

	s.logger.Info("trade proposed",
		slog.String("tradeID", trade.ID),
		slog.String("initiatorID", initiatorID),
		slog.String("targetID", p.TargetID),
	)
	publish(ctx, s.pub, s.logger, realtime.UserTopic(p.TargetID), realtime.TypeNotification, request)
	return trade, nil
}

func tradeCard(e model.CollectionEntry, qty int) model.TradeCard {
	return model.TradeCard{CardID: e.CardID, Name: e.Name, Image: e.Image, Quantity: qty}
}

// ListTrades returns every trade userID takes part in.
func (s *TradeService) ListTrades(ctx context.Context, userID string) ([]model.Trade, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	trades, err := s.trades.ListTrades(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/trade: listing trades of %s: %w", userID, err)
	}
	return trades, nil
}

// GetTrade returns a trade to one of its participants.
func (s *TradeService) GetTrade(ctx context.Context, userID, id string) (*model.Trade, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	trade, err := s.trades.GetTrade(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/trade: fetching trade %s: %w", id, err)
	}
	if !trade.Participant(userID) {
		return nil, apperror.Forbidden("You are not part of this trade")
	}
	return trade, nil
}

// RateTrade scores the counterparty of an accepted trade and returns their new rating.
func (s *TradeService) RateTrade(ctx context.Context, raterID, tradeID string, score int) (float64, error) {
	if err := requireUser(raterID); err != nil {
		return 0, err
	}
	if score < MinRating || score > MaxRating {
		return 0, apperror.ValidationFailed("score",
			fmt.Sprintf("Rating must be between %d and %d", MinRating, MaxRating))
	}

	trade, err := s.GetTrade(ctx, raterID, tradeID)
	if err != nil {
		return 0, err
	}
	if trade.Status != model.TradeAccepted {
		return 0, apperror.ConflictMessage("Only accepted trades can be rated")
	}

	ratee := trade.Counterparty(raterID)
	rating, err := s.trades.RateTrade(ctx, trade.ID, raterID, ratee, score)
	if err != nil {
		return 0, fmt.Errorf("service/trade: rating trade %s: %w", trade.ID, err)
	}

	s.logger.Info("trade rated",
		slog.String("tradeID", trade.ID),
		slog.String("rateeID", ratee),
		slog.Int("score", score),
	)
	return rating, nil
}
