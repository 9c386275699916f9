// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// User is an account plus its public trading profile.
//
// PhotoURL holds the avatar reference. It is either an external image URL
// (an upload or the Google profile picture) or a built-in avatar written as
// "preset:<name>".
type User struct {
	ID              string    `json:"id"`
	Email           string    `json:"email,omitempty"`
	DisplayName     string    `json:"displayName"`
	PhotoURL        string    `json:"photoURL"`
	Bio             string    `json:"bio"`
	Age             int       `json:"age,omitempty"`
	FriendCode      string    `json:"friendCode"`
	Location        string    `json:"location"`
	FavoritePokemon string    `json:"favoritePokemon"`
	FavoriteCard    string    `json:"favoriteCard"`
	Rating          float64   `json:"rating"`      // 0-5, one decimal
	RatingCount     int       `json:"ratingCount"` // number of trade ratings received
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	GoogleSub    string `json:"-"` // Google account subject, empty for password accounts
	PasswordHash string `json:"-"` // bcrypt hash, empty for Google-only accounts
}

// Public strips the fields only the owner should see.
func (u User) Public() User {
	u.Email = ""
	return u
}

// Stats are derived counters shown on a profile.
type Stats struct {
	Friends        int `json:"friends"`
	AcceptedTrades int `json:"acceptedTrades"`
}

// Profile is the user as shown on a profile page.
type Profile struct {
	User
	Stats Stats `json:"stats"`
}

// ProfileUpdate carries the owner-editable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	DisplayName     *string
	Bio             *string
	Age             *int
	Location        *string
	FavoritePokemon *string
	FavoriteCard    *string
}

const avatarPresetPrefix = "preset:"

// AvatarPresets is the fixed set of built-in avatars a user can pick instead of uploading one.
var AvatarPresets = []string{
	"pikachu",
	"bulbasaur",
	"charmander",
	"squirtle",
	"eevee",
	"jigglypuff",
	"snorlax",
	"mewtwo",
}

// IsAvatarPreset reports whether name is one of AvatarPresets.
func IsAvatarPreset(name string) bool {
	for _, p := range AvatarPresets {
		if p == name {
			return true
		}
	}
	return false
}

// PresetAvatarRef returns the stored reference for a built-in avatar.
func PresetAvatarRef(name string) string {
	return avatarPresetPrefix + name
}

// AvatarPreset returns the preset name if the avatar is a built-in one.
func (u User) AvatarPreset() (string, bool) {
	if !strings.HasPrefix(u.PhotoURL, avatarPresetPrefix) {
		return "", false
	}
	return strings.TrimPrefix(u.PhotoURL, avatarPresetPrefix), true
}
