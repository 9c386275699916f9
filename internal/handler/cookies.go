package handler

import (
	"net/http"
	"time"

	"github.com/sakif/poketrade/internal/auth"
)

const (
	stateCookie    = "oauth_state"
	modeCookie     = "mode"
	darkModeCookie = "darkMode"

	// Preferences outlive sessions; a year is what the browser keeps them for.
	preferenceMaxAge = 365 * 24 * time.Hour
)

// Cookies holds the attributes shared by every cookie the API sets.
type Cookies struct {
	Secure     bool          // HTTPS only; off for local development
	SessionTTL time.Duration // lifetime of the session cookie, matches the JWT
}

func (c Cookies) set(w http.ResponseWriter, name, value string, maxAge time.Duration, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clear tells the browser to delete the cookie immediately.
func (c Cookies) clear(w http.ResponseWriter, name string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setSession stores the JWT in an HttpOnly cookie so page scripts never see it.
func (c Cookies) setSession(w http.ResponseWriter, token string) {
	c.set(w, auth.CookieName, token, c.SessionTTL, true)
}
