// Package service contains the business logic layer of the application.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Services take repository interfaces, never *sqlite.DB, and return apperror
// values that the handler layer maps onto status codes. Every operation that acts
// on behalf of a user checks that a user id is present before touching a store.
package service

import (
	"context"
	"log/slog"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/realtime"
)

const signInMessage = "Please sign in to continue"

// requireUser rejects anonymous callers.
func requireUser(userID string) error {
	if userID == "" {
		return apperror.Unauthenticated(signInMessage)
	}
	return nil
}

// publish pushes v to topic's live subscribers. Live delivery is best-effort: the
// record it describes is already stored, so a failure is logged and swallowed.
func publish(ctx context.Context, pub realtime.Publisher, logger *slog.Logger, topic, typ string, v any) {
	if pub == nil {
		return
	}
	ev, err := realtime.NewEvent(topic, typ, v)
	if err == nil {
		err = pub.Publish(ctx, ev)
	}
	if err != nil {
		logger.Warn("publishing live event failed",
			slog.String("topic", topic),
			slog.String("type", typ),
			slog.String("error", err.Error()),
		)
	}
}
