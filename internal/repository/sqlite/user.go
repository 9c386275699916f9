package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, google_sub, password_hash, display_name, photo_url, bio, age,
	friend_code, location, favorite_pokemon, favorite_card, rating, rating_count,
	created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.GoogleSub,
		&u.PasswordHash,
		&u.DisplayName,
		&u.PhotoURL,
		&u.Bio,
		&u.Age,
		&u.FriendCode,
		&u.Location,
		&u.FavoritePokemon,
		&u.FavoriteCard,
		&u.Rating,
		&u.RatingCount,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateUser inserts a new account. The caller sets FriendCode; ID and timestamps
// are filled in here. A duplicate email, Google subject or friend code is a conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, google_sub, password_hash, display_name, search_name,
			photo_url, bio, age, friend_code, location, favorite_pokemon, favorite_card,
			rating, rating_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.GoogleSub,
		user.PasswordHash,
		user.DisplayName,
		foldName(user.DisplayName),
		user.PhotoURL,
		user.Bio,
		user.Age,
		user.FriendCode,
		user.Location,
		user.FavoritePokemon,
		user.FavoriteCard,
		user.Rating,
		user.RatingCount,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMessage("an account with these details already exists")
		}
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserByEmail matches the email case-insensitively.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperror.NotFound("user", email)
	}
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

func (db *DB) GetUserByGoogleSub(ctx context.Context, sub string) (*model.User, error) {
	if sub == "" {
		return nil, apperror.NotFound("user", sub)
	}
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_sub = ?`, sub))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", sub)
		}
		return nil, fmt.Errorf("sqlite: getting user by google subject: %w", err)
	}
	return u, nil
}

// LinkGoogleAccount attaches a Google subject to an existing password account.
func (db *DB) LinkGoogleAccount(ctx context.Context, userID, sub string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET google_sub = ?, updated_at = ? WHERE id = ?`,
		sub, time.Now().UTC(), userID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMessage("this Google account is linked to another user")
		}
		return fmt.Errorf("sqlite: linking google account to %s: %w", userID, err)
	}
	return requireAffected(res, "user", userID)
}

func (db *DB) FriendCodeTaken(ctx context.Context, code string) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE friend_code = ?`, code).Scan(&n); err != nil {
		return false, fmt.Errorf("sqlite: checking friend code: %w", err)
	}
	return n > 0, nil
}

// UpdateProfile writes the owner-editable profile fields.
func (db *DB) UpdateProfile(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET display_name = ?, search_name = ?, bio = ?, age = ?, location = ?,
			favorite_pokemon = ?, favorite_card = ?, updated_at = ?
		 WHERE id = ?`,
		user.DisplayName,
		foldName(user.DisplayName),
		user.Bio,
		user.Age,
		user.Location,
		user.FavoritePokemon,
		user.FavoriteCard,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s: %w", user.ID, err)
	}
	return requireAffected(res, "user", user.ID)
}

// UpdateAvatar replaces the avatar reference (URL or preset).
func (db *DB) UpdateAvatar(ctx context.Context, userID, ref string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET photo_url = ?, updated_at = ? WHERE id = ?`,
		ref, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("sqlite: updating avatar %s: %w", userID, err)
	}
	return requireAffected(res, "user", userID)
}

// SearchUsers matches a case-folded substring of the display name, or an exact
// friend code. excludeID (the caller) is never returned.
func (db *DB) SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]model.User, error) {
	folded := foldName(query)
	if folded == "" {
		return []model.User{}, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id <> ? AND (instr(search_name, ?) > 0 OR friend_code = ?)
		 ORDER BY display_name, id
		 LIMIT ?`,
		excludeID, folded, strings.ToUpper(strings.TrimSpace(query)), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// requireAffected turns a zero-row UPDATE/DELETE into apperror.NotFound.
func requireAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
