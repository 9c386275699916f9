package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/service"
)

// CollectionHandler edits the signed-in user's inventory and wishlist and reads
// other users' collections.
//
// Every write answers with the whole collection at its new version, so the
// client can replace its copy without a second request.
type CollectionHandler struct {
	collections *service.CollectionService
	logger      *slog.Logger
}

func NewCollectionHandler(collections *service.CollectionService, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{collections: collections, logger: logger}
}

func kindParam(r *http.Request) model.CollectionKind {
	return model.CollectionKind(chi.URLParam(r, "kind"))
}

// HandleGetMine returns one of the caller's collections.
//
// HTTP: GET /api/me/{kind}
func (h *CollectionHandler) HandleGetMine(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	c, err := h.collections.Get(r.Context(), id, id, kindParam(r))
	if err != nil {
		fail(w, r, h.logger, "get collection", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleGetUser returns another user's collection.
//
// HTTP: GET /api/users/{id}/{kind}
func (h *CollectionHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	c, err := h.collections.Get(r.Context(), userID(r), chi.URLParam(r, "id"), kindParam(r))
	if err != nil {
		fail(w, r, h.logger, "get collection", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// cardRequest is the catalog card being added, as the client received it.
type cardRequest struct {
	ID      string `json:"id" validate:"required"`
	Name    string `json:"name" validate:"required"`
	Image   string `json:"image"`
	Rarity  string `json:"rarity"`
	SetID   string `json:"setId"`
	SetName string `json:"setName"`
}

type addCardRequest struct {
	Card     cardRequest `json:"card"`
	Quantity int         `json:"quantity"`
}

// HandleAdd puts a card into the collection, replacing any existing entry.
//
// HTTP: POST /api/me/{kind}
// REQUEST BODY: {"card": {"id": "sv1-25", "name": "Pikachu", ...}, "quantity": 2}
func (h *CollectionHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addCardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	card := model.Card{
		ID:      req.Card.ID,
		Name:    req.Card.Name,
		Image:   req.Card.Image,
		Rarity:  req.Card.Rarity,
		SetID:   req.Card.SetID,
		SetName: req.Card.SetName,
	}
	c, err := h.collections.AddCard(r.Context(), userID(r), kindParam(r), card, req.Quantity)
	if err != nil {
		fail(w, r, h.logger, "add card", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type deltasRequest struct {
	Version int64          `json:"version" validate:"min=0"`
	Deltas  map[string]int `json:"deltas" validate:"required"`
}

// HandleApplyDeltas confirms an edit session's quantity changes.
//
// HTTP: PATCH /api/me/{kind}
// REQUEST BODY: {"version": 7, "deltas": {"sv1-25": -1, "sv1-120": 2}}
//
// A stale version answers 409 and the client reloads before retrying.
func (h *CollectionHandler) HandleApplyDeltas(w http.ResponseWriter, r *http.Request) {
	var req deltasRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.collections.ApplyDeltas(r.Context(), userID(r), kindParam(r), req.Version, req.Deltas)
	if err != nil {
		fail(w, r, h.logger, "apply deltas", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleRemove deletes a card from the collection.
//
// HTTP: DELETE /api/me/{kind}/{cardID}
func (h *CollectionHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	c, err := h.collections.RemoveCard(r.Context(), userID(r), kindParam(r), chi.URLParam(r, "cardID"))
	if err != nil {
		fail(w, r, h.logger, "remove card", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type favoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// HandleSetFavorite flags or unflags a wishlist card.
//
// HTTP: PUT /api/me/wishlist/{cardID}/favorite
// REQUEST BODY: {"favorite": true}
func (h *CollectionHandler) HandleSetFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.collections.SetFavorite(r.Context(), userID(r), chi.URLParam(r, "cardID"), req.Favorite)
	if err != nil {
		fail(w, r, h.logger, "set favorite", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
