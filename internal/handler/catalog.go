package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/poketrade/internal/catalog"
	"github.com/sakif/poketrade/internal/model"
)

// CatalogHandler browses card sets and searches cards in either game.
type CatalogHandler struct {
	catalog *catalog.Catalog
	cookies Cookies
	logger  *slog.Logger
}

func NewCatalogHandler(c *catalog.Catalog, cookies Cookies, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: c, cookies: cookies, logger: logger}
}

// modeOf picks the card source: ?mode= first, then the saved preference,
// then the physical game.
func modeOf(r *http.Request) model.Mode {
	if m := r.URL.Query().Get("mode"); m != "" {
		return model.ParseMode(m)
	}
	if c, err := r.Cookie(modeCookie); err == nil {
		return model.ParseMode(c.Value)
	}
	return model.Physical
}

// HandleListSets returns every set of the selected game.
//
// HTTP: GET /api/catalog/sets?mode=digital
func (h *CatalogHandler) HandleListSets(w http.ResponseWriter, r *http.Request) {
	sets, err := h.catalog.ListSets(r.Context(), modeOf(r))
	if err != nil {
		fail(w, r, h.logger, "list sets", err)
		return
	}
	writeJSON(w, http.StatusOK, sets)
}

// HandleGetSet returns one set with its cards.
//
// HTTP: GET /api/catalog/sets/{id}
func (h *CatalogHandler) HandleGetSet(w http.ResponseWriter, r *http.Request) {
	set, err := h.catalog.GetSet(r.Context(), modeOf(r), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, "get set", err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// HandleSearchCards finds cards by name.
//
// HTTP: GET /api/catalog/cards?q=pikachu
func (h *CatalogHandler) HandleSearchCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.catalog.SearchCards(r.Context(), modeOf(r), r.URL.Query().Get("q"))
	if err != nil {
		fail(w, r, h.logger, "search cards", err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

type preferencesRequest struct {
	Mode     string `json:"mode" validate:"omitempty,oneof=physical digital"`
	DarkMode *bool  `json:"darkMode"`
}

type preferencesResponse struct {
	Mode     model.Mode `json:"mode"`
	DarkMode bool       `json:"darkMode"`
}

// HandleSetPreferences saves the game mode and theme as long-lived cookies.
// They are readable by page scripts so the UI can render before the first API call.
//
// HTTP: PUT /api/preferences
// REQUEST BODY: {"mode": "digital", "darkMode": true}
func (h *CatalogHandler) HandleSetPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	resp := preferencesResponse{Mode: modeOf(r)}
	if req.Mode != "" {
		resp.Mode = model.Mode(req.Mode)
		h.cookies.set(w, modeCookie, req.Mode, preferenceMaxAge, false)
	}
	if c, err := r.Cookie(darkModeCookie); err == nil {
		resp.DarkMode, _ = strconv.ParseBool(c.Value)
	}
	if req.DarkMode != nil {
		resp.DarkMode = *req.DarkMode
		h.cookies.set(w, darkModeCookie, strconv.FormatBool(*req.DarkMode), preferenceMaxAge, false)
	}
	writeJSON(w, http.StatusOK, resp)
}
