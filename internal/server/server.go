// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the wiring layer: it is the one place where the database,
// broker, object store, catalog clients, services and handlers are built and
// connected (the "composition root"). main.go only loads config and calls
// New and Start.
//
// DEPENDENCY FLOW:
//
//	config.Config → sqlite.DB, realtime.Broker, storage.ObjectStore, catalog.Catalog
//	             → services (business rules) → handlers (HTTP) → routes
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron/v2"

	"github.com/sakif/poketrade/internal/auth"
	"github.com/sakif/poketrade/internal/catalog"
	"github.com/sakif/poketrade/internal/config"
	"github.com/sakif/poketrade/internal/handler"
	"github.com/sakif/poketrade/internal/middleware"
	"github.com/sakif/poketrade/internal/realtime"
	sqliteRepo "github.com/sakif/poketrade/internal/repository/sqlite"
	"github.com/sakif/poketrade/internal/service"
	"github.com/sakif/poketrade/internal/storage"
	"github.com/sakif/poketrade/internal/storage/s3store"
)

const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database, the broker and the scheduler. Close releases
// them in reverse order of creation; Start calls it after the HTTP server
// has drained.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	db        *sqliteRepo.DB
	broker    realtime.Broker
	scheduler gocron.Scheduler
	live      *handler.LiveHandler
}

// New builds every dependency from cfg and registers the routes.
//
// Optional parts are switched on by config:
//   - REDIS_URL set     → RedisBroker, so several instances share live streams
//   - S3_BUCKET set     → avatar uploads
//   - GOOGLE_CLIENT_*   → Google sign-in routes
//   - POCKET_REFRESH_INTERVAL > 0 → cached digital catalog refreshed by gocron
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setup(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) setup(ctx context.Context) error {
	cfg := s.config

	// === REALTIME ===
	if cfg.RedisURL != "" {
		b, err := realtime.NewRedisBroker(ctx, cfg.RedisURL, s.logger)
		if err != nil {
			return fmt.Errorf("connecting broker: %w", err)
		}
		s.broker = b
		s.logger.Info("realtime: using redis broker")
	} else {
		s.broker = realtime.NewHub(realtime.DefaultBuffer, s.logger)
	}

	// === OBJECT STORAGE ===
	// Left as a nil interface (not a nil *s3store.Store) when uploads are off.
	var avatars storage.ObjectStore
	if cfg.S3.Enabled() {
		store, err := s3store.New(ctx, s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("creating object store: %w", err)
		}
		avatars = store
	} else {
		s.logger.Warn("S3_BUCKET not set, avatar uploads are disabled")
	}

	// === CATALOG ===
	client := &http.Client{Timeout: cfg.CatalogTimeout}
	digital := catalog.NewDigitalClient(cfg.PocketFeedURL, cfg.PocketRefreshInterval, client, s.logger)
	cards := catalog.New(
		catalog.NewPhysicalClient(cfg.PokemonTCGURL, cfg.PokemonTCGKey, client, s.logger),
		digital,
	)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	s.scheduler = scheduler
	if err := digital.Schedule(scheduler); err != nil {
		return fmt.Errorf("scheduling digital feed refresh: %w", err)
	}

	// === AUTH ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	var google *auth.GoogleProvider
	if cfg.GoogleEnabled() {
		google = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
	} else {
		s.logger.Warn("GOOGLE_CLIENT_ID not set, Google sign-in is disabled")
	}

	// === SERVICES ===
	// s.db implements every repository interface; each service only sees the
	// ones it needs.
	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)
	profiles := service.NewProfileService(s.db, s.db, s.db, avatars, s.logger)
	collections := service.NewCollectionService(s.db, s.db, s.logger)
	social := service.NewSocialService(s.db, s.db, s.db, s.db, s.db, s.broker, s.logger)
	trades := service.NewTradeService(s.db, s.db, s.db, s.broker, s.logger)
	chats := service.NewChatService(s.db, s.db, s.db, s.db, s.broker, s.logger)

	// === HANDLERS ===
	cookies := handler.Cookies{Secure: cfg.CookieSecure, SessionTTL: cfg.SessionTTL}
	h := handlers{
		auth:        handler.NewAuthHandler(authService, google, cookies, s.logger),
		profile:     handler.NewProfileHandler(profiles, s.logger),
		collection:  handler.NewCollectionHandler(collections, s.logger),
		catalog:     handler.NewCatalogHandler(cards, cookies, s.logger),
		social:      handler.NewSocialHandler(social, s.logger),
		trade:       handler.NewTradeHandler(trades, chats, s.logger),
		chat:        handler.NewChatHandler(chats, s.logger),
		live:        handler.NewLiveHandler(chats, social, s.logger),
		googleLogin: google != nil,
	}
	s.live = h.live

	s.setupRoutes(tokens, h)
	scheduler.Start()
	return nil
}

type handlers struct {
	auth        *handler.AuthHandler
	profile     *handler.ProfileHandler
	collection  *handler.CollectionHandler
	catalog     *handler.CatalogHandler
	social      *handler.SocialHandler
	trade       *handler.TradeHandler
	chat        *handler.ChatHandler
	live        *handler.LiveHandler
	googleLogin bool
}

// setupRoutes configures all middleware and route handlers.
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added:
//  1. RequestID: assigns a unique id to each request (for tracing)
//  2. RealIP: extracts the client IP from proxy headers
//  3. Recoverer: turns panics into 500s instead of crashing
//  4. Logger: one log line per request
//
// Inside the route groups, the auth middleware runs before TagUser so the
// request log line carries the user id.
func (s *Server) setupRoutes(tokens *auth.TokenService, h handlers) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tagUser := middleware.TagUser(auth.UserIDFromContext)

	s.router.Get("/healthz", s.handleHealth)

	// === Auth Routes ===
	s.router.Route("/auth", func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens), tagUser)
		r.Post("/register", h.auth.HandleRegister)
		r.Post("/login", h.auth.HandleLogin)
		r.Post("/logout", h.auth.HandleLogout)
		if h.googleLogin {
			r.Get("/google/login", h.auth.HandleGoogleLogin)
			r.Get("/google/callback", h.auth.HandleGoogleCallback)
		}
	})

	// === API Routes ===
	// Everything under /api needs a session.
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens), tagUser)

		r.Get("/me", h.profile.HandleMe)
		r.Put("/me/profile", h.profile.HandleUpdate)
		r.Put("/me/avatar/preset", h.profile.HandleSetPreset)
		r.Post("/me/avatar", h.profile.HandleUploadAvatar)
		r.Put("/me/wishlist/{cardID}/favorite", h.collection.HandleSetFavorite)
		r.Get("/me/{kind}", h.collection.HandleGetMine)
		r.Post("/me/{kind}", h.collection.HandleAdd)
		r.Patch("/me/{kind}", h.collection.HandleApplyDeltas)
		r.Delete("/me/{kind}/{cardID}", h.collection.HandleRemove)

		r.Get("/users", h.profile.HandleSearch)
		r.Get("/users/{id}", h.profile.HandleGetUser)
		r.Get("/users/{id}/{kind}", h.collection.HandleGetUser)

		r.Put("/preferences", h.catalog.HandleSetPreferences)
		r.Get("/catalog/sets", h.catalog.HandleListSets)
		r.Get("/catalog/sets/{id}", h.catalog.HandleGetSet)
		r.Get("/catalog/cards", h.catalog.HandleSearchCards)

		r.Get("/friends", h.social.HandleListFriends)
		r.Post("/friends/{id}", h.social.HandleSendRequest)
		r.Delete("/friends/{id}", h.social.HandleRemoveFriend)
		r.Get("/notifications", h.social.HandleListNotifications)
		r.Post("/notifications/{id}/accept", h.social.HandleAccept)
		r.Post("/notifications/{id}/decline", h.social.HandleDecline)
		r.Post("/notifications/{id}/read", h.social.HandleMarkRead)

		r.Get("/trades", h.trade.HandleList)
		r.Post("/trades", h.trade.HandleCreate)
		r.Get("/trades/{id}", h.trade.HandleGet)
		r.Post("/trades/{id}/rating", h.trade.HandleRate)
		r.Post("/trades/{id}/chat", h.trade.HandleOpenChat)

		r.Get("/chats/{id}/messages", h.chat.HandleHistory)
		r.Post("/chats/{id}/messages", h.chat.HandleSend)
		r.Get("/chats/{id}/live", h.live.HandleChat)
		r.Get("/live", h.live.HandleNotifications)
	})
}

// handleHealth reports whether the database answers.
//
// HTTP: GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Handler returns the router. Tests serve it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the scheduler and releases the broker and the database.
func (s *Server) Close() error {
	var errs []error
	if s.live != nil {
		s.live.Shutdown()
	}
	if s.scheduler != nil {
		errs = append(errs, s.scheduler.Shutdown())
	}
	if s.broker != nil {
		errs = append(errs, s.broker.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections and tell live streams to close
//  2. Wait up to 30s for in-flight requests to finish
//  3. Stop the scheduler, close the broker, close the database
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	// No WriteTimeout: websocket streams are long-lived and set their own
	// deadlines after the upgrade.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	srv.RegisterOnShutdown(s.live.Shutdown)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
