package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/aidarkhanov/nanoid/v2"

	"github.com/sakif/poketrade/internal/apperror"
	"github.com/sakif/poketrade/internal/auth"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/repository"
)

const (
	// Friend codes are shown to users and typed back in, so the alphabet skips
	// characters that are easy to confuse (0/O, 1/I/L).
	friendCodeAlphabet    = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	friendCodeLength      = 10
	maxFriendCodeAttempts = 5

	invalidCredentials = "Invalid email or password"
	defaultDisplayName = "Trainer"
)

// AuthService handles sign-up, sign-in and session issuing.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                   ↘ TokenService (JWT), PasswordService (bcrypt)
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger

	newCode func() (string, error)
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
		newCode: func() (string, error) {
			return nanoid.GenerateString(friendCodeAlphabet, friendCodeLength)
		},
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can set
// the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates an email/password account and signs it in.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return nil, apperror.ValidationFailed("email", "Please enter a valid email address")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = local
	}
	if utf8.RuneCountInString(displayName) > MaxDisplayNameLength {
		return nil, apperror.ValidationFailed("displayName",
			fmt.Sprintf("Display name must be %d characters or less", MaxDisplayNameLength))
	}

	// Hash validates the length before doing any work.
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, apperror.ConflictMessage("An account with this email already exists")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	code, err := s.friendCode(ctx)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		FriendCode:   code,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("friendCode", user.FriendCode),
	)
	return s.issue(user)
}

// Login checks an email/password pair. An unknown email and a wrong password
// produce the same error so the endpoint cannot be used to probe for accounts.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}
	if user.PasswordHash == "" {
		// Google-only account.
		return nil, apperror.Unauthenticated(invalidCredentials)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthenticated(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: verifying password for %s: %w", user.ID, err)
	}

	s.logger.Info("user signed in", slog.String("userID", user.ID))
	return s.issue(user)
}

// LoginOrRegisterGoogle handles the Google OAuth callback.
//
// A returning Google user is found by subject. On first Google sign-in an
// existing account with the same verified email is linked; otherwise a new
// account is created from the Google profile.
func (s *AuthService) LoginOrRegisterGoogle(ctx context.Context, g *auth.GoogleUser) (*AuthResult, error) {
	if g == nil || g.Subject == "" {
		return nil, fmt.Errorf("service/auth: Google user must not be empty")
	}

	user, err := s.users.GetUserByGoogleSub(ctx, g.Subject)
	if err == nil {
		s.logger.Info("user signed in via Google", slog.String("userID", user.ID))
		return s.issue(user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up Google subject: %w", err)
	}

	// Email is only set by the provider when Google verified it.
	if g.Email != "" {
		existing, err := s.users.GetUserByEmail(ctx, g.Email)
		switch {
		case err == nil:
			if err := s.users.LinkGoogleAccount(ctx, existing.ID, g.Subject); err != nil {
				return nil, fmt.Errorf("service/auth: linking Google account: %w", err)
			}
			existing.GoogleSub = g.Subject
			s.logger.Info("Google account linked", slog.String("userID", existing.ID))
			return s.issue(existing)
		case !errors.Is(err, apperror.ErrNotFound):
			return nil, fmt.Errorf("service/auth: looking up %s: %w", g.Email, err)
		}
	}

	code, err := s.friendCode(ctx)
	if err != nil {
		return nil, err
	}
	user = &model.User{
		Email:       g.Email,
		GoogleSub:   g.Subject,
		DisplayName: googleDisplayName(g),
		PhotoURL:    g.Picture,
		FriendCode:  code,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating Google user: %w", err)
	}

	s.logger.Info("user registered via Google", slog.String("userID", user.ID))
	return s.issue(user)
}

func googleDisplayName(g *auth.GoogleUser) string {
	name := strings.TrimSpace(g.Name)
	if name == "" {
		name, _, _ = strings.Cut(g.Email, "@")
	}
	if name == "" {
		return defaultDisplayName
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		name = string([]rune(name)[:MaxDisplayNameLength])
	}
	return name
}

// friendCode draws codes until one is free. With 31^10 codes a second attempt is
// already rare; the bound only guards against a broken generator.
func (s *AuthService) friendCode(ctx context.Context) (string, error) {
	for i := 0; i < maxFriendCodeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", fmt.Errorf("service/auth: generating friend code: %w", err)
		}
		taken, err := s.users.FriendCodeTaken(ctx, code)
		if err != nil {
			return "", fmt.Errorf("service/auth: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("service/auth: no free friend code after %d attempts", maxFriendCodeAttempts)
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID returns the signed-in user's own record.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if err := requireUser(id); err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken validates a JWT string and returns the userID it encodes.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}
