package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
)

// newTestDB opens a fresh in-memory database and closes it when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var friendCodeSeq int

// createTestUser is a test helper that creates a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, name string) *model.User {
	t.Helper()
	friendCodeSeq++
	u := &model.User{
		Email:       name + "@example.com",
		DisplayName: name,
		FriendCode:  fmt.Sprintf("CODE%06d", friendCodeSeq),
	}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

// =========================================================================
// CREATE / GET
// =========================================================================

func TestCreateUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := &model.User{Email: "  Ash@Example.com ", DisplayName: "Ash", FriendCode: "ASH0000001"}
	require.NoError(t, db.CreateUser(ctx, u))

	assert.NotEmpty(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())
	assert.Equal(t, "ash@example.com", u.Email)

	got, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ash", got.DisplayName)
	assert.Equal(t, "ASH0000001", got.FriendCode)

	byEmail, err := db.GetUserByEmail(ctx, "ASH@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &model.User{Email: "misty@example.com", DisplayName: "Misty", FriendCode: "A"}))
	err := db.CreateUser(ctx, &model.User{Email: "misty@example.com", DisplayName: "Other", FriendCode: "B"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestCreateUser_EmptyEmailsDoNotCollide(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &model.User{DisplayName: "A", GoogleSub: "g-1", FriendCode: "A"}))
	require.NoError(t, db.CreateUser(ctx, &model.User{DisplayName: "B", GoogleSub: "g-2", FriendCode: "B"}))
}

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetUserByID(context.Background(), "nope")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestGoogleLinking(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "brock")

	_, err := db.GetUserByGoogleSub(ctx, "google-123")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	require.NoError(t, db.LinkGoogleAccount(ctx, u.ID, "google-123"))

	got, err := db.GetUserByGoogleSub(ctx, "google-123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

// =========================================================================
// PROFILE / SEARCH
// =========================================================================

func TestUpdateProfileAndAvatar(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	u := createTestUser(t, db, "dawn")

	u.DisplayName = "Dawn B."
	u.Bio = "Piplup fan"
	u.Age = 15
	u.FavoritePokemon = "Piplup"
	require.NoError(t, db.UpdateProfile(ctx, u))
	require.NoError(t, db.UpdateAvatar(ctx, u.ID, model.PresetAvatarRef("eevee")))

	got, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dawn B.", got.DisplayName)
	assert.Equal(t, "Piplup fan", got.Bio)
	assert.Equal(t, 15, got.Age)
	assert.Equal(t, "preset:eevee", got.PhotoURL)

	err = db.UpdateAvatar(ctx, "missing", "x")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestSearchUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	caller := createTestUser(t, db, "Gary Oak")
	ash := createTestUser(t, db, "Ash Ketchum")
	createTestUser(t, db, "Flabébé Fan")

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"case-insensitive substring", "ketch", []string{"Ash Ketchum"}},
		{"non-ascii folding", "FLABÉBÉ", []string{"Flabébé Fan"}},
		{"friend code exact", ash.FriendCode, []string{"Ash Ketchum"}},
		{"caller excluded", "gary", []string{}},
		{"blank query", "   ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := db.SearchUsers(ctx, tt.query, caller.ID, 20)
			require.NoError(t, err)
			names := []string{}
			for _, u := range users {
				names = append(names, u.DisplayName)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestFriendCodeTaken(t *testing.T) {
	db := newTestDB(t)
	u := createTestUser(t, db, "oak")

	taken, err := db.FriendCodeTaken(context.Background(), u.FriendCode)
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = db.FriendCodeTaken(context.Background(), "UNUSED")
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.migrate())
	require.NoError(t, db.migrate())
}
