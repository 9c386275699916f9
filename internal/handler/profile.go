package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/service"
)

// avatarField is the multipart form field carrying the uploaded image.
const avatarField = "avatar"

// ProfileHandler serves the signed-in user's profile and lookups of other users.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// HandleMe returns the signed-in user's profile, email included.
//
// HTTP: GET /api/me
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id := userID(r)
	p, err := h.profiles.GetProfile(r.Context(), id, id)
	if err != nil {
		fail(w, r, h.logger, "get own profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleGetUser returns another user's public profile.
//
// HTTP: GET /api/users/{id}
func (h *ProfileHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetProfile(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, h.logger, "get profile", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleSearch finds users by display name or friend code.
//
// HTTP: GET /api/users?q=misty
func (h *ProfileHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	users, err := h.profiles.Search(r.Context(), userID(r), r.URL.Query().Get("q"))
	if err != nil {
		fail(w, r, h.logger, "search users", err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// profileRequest mirrors model.ProfileUpdate; absent fields stay unchanged.
type profileRequest struct {
	DisplayName     *string `json:"displayName"`
	Bio             *string `json:"bio"`
	Age             *int    `json:"age"`
	Location        *string `json:"location"`
	FavoritePokemon *string `json:"favoritePokemon"`
	FavoriteCard    *string `json:"favoriteCard"`
}

// HandleUpdate edits the signed-in user's profile fields.
//
// HTTP: PUT /api/me/profile
// REQUEST BODY: {"displayName": "Ash", "bio": "...", "age": 10}
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.profiles.UpdateProfile(r.Context(), userID(r), model.ProfileUpdate{
		DisplayName:     req.DisplayName,
		Bio:             req.Bio,
		Age:             req.Age,
		Location:        req.Location,
		FavoritePokemon: req.FavoritePokemon,
		FavoriteCard:    req.FavoriteCard,
	})
	if err != nil {
		fail(w, r, h.logger, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type presetRequest struct {
	Preset string `json:"preset" validate:"required"`
}

// HandleSetPreset switches the avatar to one of the built-in images.
//
// HTTP: PUT /api/me/avatar/preset
func (h *ProfileHandler) HandleSetPreset(w http.ResponseWriter, r *http.Request) {
	var req presetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	u, err := h.profiles.SetAvatarPreset(r.Context(), userID(r), req.Preset)
	if err != nil {
		fail(w, r, h.logger, "set avatar preset", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleUploadAvatar stores an uploaded image as the user's avatar.
//
// HTTP: POST /api/me/avatar (multipart/form-data, file in the "avatar" field)
//
// The content type is sniffed from the file itself; the browser's claim is
// not trusted.
func (h *ProfileHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	if !h.profiles.UploadsEnabled() {
		writeError(w, apperror.ValidationFailed(avatarField, "Photo uploads are not available. Please pick a built-in avatar"))
		return
	}

	// Room for the multipart framing on top of the image itself.
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxAvatarBytes+64<<10)
	file, header, err := r.FormFile(avatarField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, apperror.ValidationFailed(avatarField, "Please choose an image under 5 MB"))
			return
		}
		writeError(w, apperror.ValidationFailed(avatarField, "Please choose an image to upload"))
		return
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		fail(w, r, h.logger, "read avatar", err)
		return
	}
	head = head[:n]
	contentType := http.DetectContentType(head)

	u, err := h.profiles.UploadAvatar(r.Context(), userID(r), header.Filename, contentType,
		io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		fail(w, r, h.logger, "upload avatar", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
