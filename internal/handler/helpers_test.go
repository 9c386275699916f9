package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/auth"
	"github.com/sakif/poketrade/internal/catalog"
	"github.com/sakif/poketrade/internal/handler"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/realtime"
	"github.com/sakif/poketrade/internal/repository/sqlite"
	"github.com/sakif/poketrade/internal/service"
	"github.com/sakif/poketrade/internal/storage"
)

const testSecret = "test-secret-that-is-at-least-32-characters"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeSource is an in-memory card source.
type fakeSource struct {
	sets []model.Set
	err  error
}

var _ catalog.Source = (*fakeSource)(nil)

func (s *fakeSource) ListSets(context.Context) ([]model.Set, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]model.Set, 0, len(s.sets))
	for _, set := range s.sets {
		set.Cards = nil
		out = append(out, set)
	}
	return out, nil
}

func (s *fakeSource) GetSet(_ context.Context, id string) (*model.Set, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, set := range s.sets {
		if set.ID == id {
			return &set, nil
		}
	}
	return nil, apperror.NotFound("set", id)
}

func (s *fakeSource) SearchCards(_ context.Context, name string) ([]model.Card, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := []model.Card{}
	for _, set := range s.sets {
		for _, c := range set.Cards {
			if strings.Contains(strings.ToLower(c.Name), strings.ToLower(name)) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// memStore keeps uploaded objects in memory.
type memStore struct {
	objects map[string][]byte
	types   map[string]string
}

var _ storage.ObjectStore = (*memStore)(nil)

func (s *memStore) Put(_ context.Context, key, contentType string, body io.Reader) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.objects[key] = b
	s.types[key] = contentType
	return "https://cdn.example.com/" + key, nil
}

// testAPI mounts every handler on a router backed by an in-memory database.
type testAPI struct {
	db       *sqlite.DB
	hub      *realtime.Hub
	tokens   *auth.TokenService
	physical *fakeSource
	digital  *fakeSource
	avatars  *memStore
	router   chi.Router
	server   *httptest.Server
	google   *auth.GoogleProvider
	live     *handler.LiveHandler
}

type apiOption func(*testAPI)

func withGoogle(p *auth.GoogleProvider) apiOption {
	return func(a *testAPI) { a.google = p }
}

func newTestAPI(t *testing.T, opts ...apiOption) *testAPI {
	t.Helper()
	logger := testLogger()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	hub := realtime.NewHub(realtime.DefaultBuffer, logger)
	t.Cleanup(func() { hub.Close() })

	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	a := &testAPI{
		db:       db,
		hub:      hub,
		tokens:   tokens,
		physical: &fakeSource{sets: []model.Set{physicalSet()}},
		digital:  &fakeSource{sets: []model.Set{digitalSet()}},
		avatars:  &memStore{objects: map[string][]byte{}, types: map[string]string{}},
	}
	for _, opt := range opts {
		opt(a)
	}

	authService := service.NewAuthService(db, tokens, auth.NewPasswordServiceForTest(4), logger)
	profiles := service.NewProfileService(db, db, db, a.avatars, logger)
	collections := service.NewCollectionService(db, db, logger)
	social := service.NewSocialService(db, db, db, db, db, hub, logger)
	trades := service.NewTradeService(db, db, db, hub, logger)
	chats := service.NewChatService(db, db, db, db, hub, logger)

	cookies := handler.Cookies{SessionTTL: time.Hour}
	authH := handler.NewAuthHandler(authService, a.google, cookies, logger)
	profileH := handler.NewProfileHandler(profiles, logger)
	collectionH := handler.NewCollectionHandler(collections, logger)
	catalogH := handler.NewCatalogHandler(catalog.New(a.physical, a.digital), cookies, logger)
	socialH := handler.NewSocialHandler(social, logger)
	tradeH := handler.NewTradeHandler(trades, chats, logger)
	chatH := handler.NewChatHandler(chats, logger)
	liveH := handler.NewLiveHandler(chats, social, logger)
	t.Cleanup(liveH.Shutdown)
	a.live = liveH

	r := chi.NewRouter()
	r.Post("/auth/register", authH.HandleRegister)
	r.Post("/auth/login", authH.HandleLogin)
	r.Post("/auth/logout", authH.HandleLogout)
	r.Get("/auth/google/login", authH.HandleGoogleLogin)
	r.Get("/auth/google/callback", authH.HandleGoogleCallback)
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/me", profileH.HandleMe)
		r.Put("/me/profile", profileH.HandleUpdate)
		r.Put("/me/avatar/preset", profileH.HandleSetPreset)
		r.Post("/me/avatar", profileH.HandleUploadAvatar)
		r.Put("/me/wishlist/{cardID}/favorite", collectionH.HandleSetFavorite)
		r.Get("/me/{kind}", collectionH.HandleGetMine)
		r.Post("/me/{kind}", collectionH.HandleAdd)
		r.Patch("/me/{kind}", collectionH.HandleApplyDeltas)
		r.Delete("/me/{kind}/{cardID}", collectionH.HandleRemove)
		r.Get("/users", profileH.HandleSearch)
		r.Get("/users/{id}", profileH.HandleGetUser)
		r.Get("/users/{id}/{kind}", collectionH.HandleGetUser)
		r.Put("/preferences", catalogH.HandleSetPreferences)
		r.Get("/catalog/sets", catalogH.HandleListSets)
		r.Get("/catalog/sets/{id}", catalogH.HandleGetSet)
		r.Get("/catalog/cards", catalogH.HandleSearchCards)
		r.Get("/friends", socialH.HandleListFriends)
		r.Post("/friends/{id}", socialH.HandleSendRequest)
		r.Delete("/friends/{id}", socialH.HandleRemoveFriend)
		r.Get("/notifications", socialH.HandleListNotifications)
		r.Post("/notifications/{id}/accept", socialH.HandleAccept)
		r.Post("/notifications/{id}/decline", socialH.HandleDecline)
		r.Post("/notifications/{id}/read", socialH.HandleMarkRead)
		r.Get("/trades", tradeH.HandleList)
		r.Post("/trades", tradeH.HandleCreate)
		r.Get("/trades/{id}", tradeH.HandleGet)
		r.Post("/trades/{id}/rating", tradeH.HandleRate)
		r.Post("/trades/{id}/chat", tradeH.HandleOpenChat)
		r.Get("/chats/{id}/messages", chatH.HandleHistory)
		r.Post("/chats/{id}/messages", chatH.HandleSend)
		r.Get("/chats/{id}/live", liveH.HandleChat)
		r.Get("/live", liveH.HandleNotifications)
	})
	a.router = r
	return a
}

// serve starts a real listener; websocket tests need one.
func (a *testAPI) serve(t *testing.T) *httptest.Server {
	t.Helper()
	if a.server == nil {
		a.server = httptest.NewServer(a.router)
		t.Cleanup(a.server.Close)
	}
	return a.server
}

func physicalSet() model.Set {
	return model.Set{
		ID: "sv1", Name: "Scarlet & Violet", Series: "Scarlet & Violet", PrintedTotal: 2,
		Cards: []model.Card{
			{ID: "sv1-25", Name: "Pikachu", SetID: "sv1", SetName: "Scarlet & Violet"},
			{ID: "sv1-120", Name: "Staryu", SetID: "sv1", SetName: "Scarlet & Violet"},
		},
	}
}

func digitalSet() model.Set {
	return model.Set{
		ID: "genetic-apex", Name: "Genetic Apex", Series: catalog.DigitalSeries, PrintedTotal: 1,
		Cards: []model.Card{
			{ID: "a1-94", Name: "Pikachu", SetID: "genetic-apex", SetName: "Genetic Apex"},
		},
	}
}

// request builds a request with an optional JSON body and session token.
func request(t *testing.T, method, path, token string, body any) *http.Request {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	}
	return req
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, request(t, method, path, token, body))
	return rr
}

// decode reads a JSON response body into a value of type T.
func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

type session struct {
	User  model.User `json:"user"`
	Token string     `json:"token"`
}

// signUp registers a user through the API and returns its session.
func (a *testAPI) signUp(t *testing.T, name string) session {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":       strings.ToLower(name) + "@example.com",
		"password":    "pikachu123",
		"displayName": name,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[session](t, rr)
}

// stock adds qty copies of a card to the user's inventory.
func (a *testAPI) stock(t *testing.T, s session, cardID, name string, qty int) {
	t.Helper()
	rr := a.do(t, http.MethodPost, "/api/me/inventory", s.Token, map[string]any{
		"card":     map[string]string{"id": cardID, "name": name, "setId": "sv1", "setName": "Scarlet & Violet"},
		"quantity": qty,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	return decode[handler.ErrorResponse](t, rr)
}
