package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gosimple/slug"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/repository"
	"github.com/sakif/poketrade/internal/storage"
)

// Profile limits.
const (
	MaxDisplayNameLength  = 50
	MaxBioLength          = 500
	MaxAge                = 150
	MaxProfileFieldLength = 100
	MaxAvatarBytes        = 5 << 20
	MaxSearchResults      = 20
)

// ProfileService manages the public trading profile: fields, avatar, search and stats.
type ProfileService struct {
	users   repository.UserRepository
	friends repository.FriendRepository
	trades  repository.TradeRepository
	avatars storage.ObjectStore // nil disables uploads
	logger  *slog.Logger
}

func NewProfileService(
	users repository.UserRepository,
	friends repository.FriendRepository,
	trades repository.TradeRepository,
	avatars storage.ObjectStore,
	logger *slog.Logger,
) *ProfileService {
	return &ProfileService{
		users:   users,
		friends: friends,
		trades:  trades,
		avatars: avatars,
		logger:  logger,
	}
}

// UploadsEnabled reports whether an object store is configured.
func (s *ProfileService) UploadsEnabled() bool {
	return s.avatars != nil
}

// GetProfile returns id's profile with its stats. The email is only included
// when viewers look at their own profile.
func (s *ProfileService) GetProfile(ctx context.Context, viewerID, id string) (*model.Profile, error) {
	if err := requireUser(viewerID); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching user %s: %w", id, err)
	}

	friends, err := s.friends.CountFriends(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/profile: counting friends: %w", err)
	}
	trades, err := s.trades.CountAcceptedTrades(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/profile: counting trades: %w", err)
	}

	if viewerID != id {
		*user = user.Public()
	}
	return &model.Profile{
		User:  *user,
		Stats: model.Stats{Friends: friends, AcceptedTrades: trades},
	}, nil
}

// UpdateProfile applies the non-nil fields of upd. Strings are trimmed first.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, upd model.ProfileUpdate) (*model.User, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/profile: fetching user %s: %w", userID, err)
	}

	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		if name == "" {
			return nil, apperror.ValidationFailed("displayName", "Display name is required")
		}
		if utf8.RuneCountInString(name) > MaxDisplayNameLength {
			return nil, apperror.ValidationFailed("displayName",
				fmt.Sprintf("Display name must be %d characters or less", MaxDisplayNameLength))
		}
		user.DisplayName = name
	}
	if upd.Bio != nil {
		bio := strings.TrimSpace(*upd.Bio)
		if utf8.RuneCountInString(bio) > MaxBioLength {
			return nil, apperror.ValidationFailed("bio",
				fmt.Sprintf("Bio must be %d characters or less", MaxBioLength))
		}
		user.Bio = bio
	}
	if upd.Age != nil {
		if *upd.Age < 0 || *upd.Age > MaxAge {
			return nil, apperror.ValidationFailed("age",
				fmt.Sprintf("Age must be between 0 and %d", MaxAge))
		}
		user.Age = *upd.Age
	}

	fields := []struct {
		name string
		in   *string
		out  *string
	}{
		{"location", upd.Location, &user.Location},
		{"favoritePokemon", upd.FavoritePokemon, &user.FavoritePokemon},
		{"favoriteCard", upd.FavoriteCard, &user.FavoriteCard},
	}
	for _, f := range fields {
		if f.in == nil {
			continue
		}
		v := strings.TrimSpace(*f.in)
		if utf8.RuneCountInString(v) > MaxProfileFieldLength {
			return nil, apperror.ValidationFailed(f.name,
				fmt.Sprintf("%s must be %d characters or less", f.name, MaxProfileFieldLength))
		}
		*f.out = v
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("service/profile: updating %s: %w", userID, err)
	}
	s.logger.Info("profile updated", slog.String("userID", userID))
	return user, nil
}

// SetAvatarPreset switches the avatar to a built-in one, replacing any upload.
func (s *ProfileService) SetAvatarPreset(ctx context.Context, userID, name string) (*model.User, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if !model.IsAvatarPreset(name) {
		return nil, apperror.ValidationFailed("avatar", "Unknown avatar")
	}
	if err := s.users.UpdateAvatar(ctx, userID, model.PresetAvatarRef(name)); err != nil {
		return nil, fmt.Errorf("service/profile: setting avatar of %s: %w", userID, err)
	}
	return s.users.GetUserByID(ctx, userID)
}

// UploadAvatar stores an image under avatars/<userID>/<filename> and makes its
// URL the user's avatar.
func (s *ProfileService) UploadAvatar(ctx context.Context, userID, filename, contentType string, body io.Reader) (*model.User, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if s.avatars == nil {
		return nil, apperror.ValidationFailed("avatar", "Avatar uploads are not available, pick a built-in avatar instead")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperror.ValidationFailed("avatar", "Avatar must be an image")
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, io.LimitReader(body, MaxAvatarBytes+1)); err != nil {
		return nil, fmt.Errorf("service/profile: reading avatar: %w", err)
	}
	if buf.Len() == 0 {
		return nil, apperror.ValidationFailed("avatar", "Avatar file is empty")
	}
	if buf.Len() > MaxAvatarBytes {
		return nil, apperror.ValidationFailed("avatar",
			fmt.Sprintf("Avatar must be %d MB or smaller", MaxAvatarBytes>>20))
	}

	key := avatarKey(userID, filename)
	url, err := s.avatars.Put(ctx, key, contentType, buf)
	if err != nil {
		s.logger.Error("avatar upload failed",
			slog.String("userID", userID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/profile: uploading avatar: %w", err)
	}

	if err := s.users.UpdateAvatar(ctx, userID, url); err != nil {
		return nil, fmt.Errorf("service/profile: saving avatar of %s: %w", userID, err)
	}
	s.logger.Info("avatar uploaded", slog.String("userID", userID), slog.String("key", key))
	return s.users.GetUserByID(ctx, userID)
}

// avatarKey keeps the client's filename recognisable but safe to use as a key.
func avatarKey(userID, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	ext := path.Ext(base)
	name := slug.Make(strings.TrimSuffix(base, ext))
	if name == "" {
		name = "avatar"
	}
	if ext = slug.Make(ext); ext != "" {
		name += "." + ext
	}
	return fmt.Sprintf("avatars/%s/%s", userID, name)
}

// Search finds other users by display name or friend code.
func (s *ProfileService) Search(ctx context.Context, callerID, query string) ([]model.User, error) {
	if err := requireUser(callerID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.User{}, nil
	}
	users, err := s.users.SearchUsers(ctx, query, callerID, MaxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("service/profile: searching %q: %w", query, err)
	}
	for i := range users {
		users[i] = users[i].Public()
	}
	return users, nil
}
