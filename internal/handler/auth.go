package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/poketrade/internal/auth"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/service"
)

// AuthHandler manages sign-up, sign-in and the Google OAuth flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister / HandleLogin → email and password accounts
//   - HandleGoogleLogin            → redirect the browser to Google's consent page
//   - HandleGoogleCallback         → receive the code, sign the user in, issue JWT
//   - HandleLogout                 → clear the JWT cookie
//
// Every successful sign-in sets the session cookie and also returns the token
// in the body for clients that send Authorization: Bearer instead.
type AuthHandler struct {
	auth    *service.AuthService
	google  *auth.GoogleProvider // nil when Google sign-in is not configured
	cookies Cookies
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. google may be nil.
func NewAuthHandler(
	authService *service.AuthService,
	google *auth.GoogleProvider,
	cookies Cookies,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:    authService,
		google:  google,
		cookies: cookies,
		logger:  logger,
	}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// HandleRegister creates an account and signs it in.
//
// HTTP: POST /auth/register
// REQUEST BODY: {"email": "ash@example.com", "password": "pikachu123", "displayName": "Ash"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		fail(w, r, h.logger, "register", err)
		return
	}

	h.cookies.setSession(w, res.Token)
	writeJSON(w, http.StatusCreated, sessionResponse{User: res.User, Token: res.Token})
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		fail(w, r, h.logger, "login", err)
		return
	}

	h.cookies.setSession(w, res.Token)
	writeJSON(w, http.StatusOK, sessionResponse{User: res.User, Token: res.Token})
}

// HandleGoogleLogin redirects the user to Google's authorization page.
//
// HTTP: GET /auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived HttpOnly cookie and into the
// redirect. HandleGoogleCallback only continues when Google echoes the same
// value back, which proves this server started the flow.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	h.cookies.set(w, stateCookie, state, 10*time.Minute, true)
	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the Google identity
//  3. Find, link or create the account
//  4. Issue a JWT stored in an HttpOnly cookie
//  5. Redirect to the app home page
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	state, err := r.Cookie(stateCookie)
	if err != nil || state.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != state.Value {
		h.logger.Warn("auth callback: state mismatch",
			slog.String("expected", state.Value),
			slog.String("got", r.URL.Query().Get("state")),
		)
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use.
	h.cookies.clear(w, stateCookie, true)

	// Google sends ?error=access_denied when the user cancels.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for the Google identity ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	gUser, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Google exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	// --- Step 3: Sign in ---
	res, err := h.auth.LoginOrRegisterGoogle(r.Context(), gUser)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 4: Issue JWT cookie ---
	h.cookies.setSession(w, res.Token)

	// --- Step 5: Redirect to the app ---
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless, so signing out means deleting the cookie. POST keeps
// browsers from triggering it by prefetching a link.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w, auth.CookieName, true)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}
