package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/cliphub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// AuthService owns the authentication session lifecycle: credential
// verification, token pair issuance, rotation, and invalidation.
type AuthService struct {
	repo   UserRepository
	tokens *TokenManager
}

func NewAuthService(repo UserRepository, tokens *TokenManager) *AuthService {
	return &AuthService{repo: repo, tokens: tokens}
}

// VerifyCredentials resolves a claimed identity plus password to a
// user record. Either username or email may identify the account.
// Read-only; session state is untouched.
func (s *AuthService) VerifyCredentials(ctx context.Context, username, email, password string) (types.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	email = strings.TrimSpace(email)
	if username == "" && email == "" {
		return types.User{}, fmt.Errorf("%w: username or email is required", ErrInvalidInput)
	}

	user, err := s.repo.GetByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return types.User{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrUnauthorized
	}
	return user, nil
}

// IssueSession mints a fresh token pair for the user and persists the
// refresh token as the single current one, overwriting any prior
// value. The previous refresh token stops working immediately even if
// it has not expired.
func (s *AuthService) IssueSession(ctx context.Context, userID int) (types.TokenPair, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		// The caller just resolved this ID; a failed reload is an
		// invariant violation, not a client error.
		return types.TokenPair{}, fmt.Errorf("reload user %d: %w", userID, err)
	}

	pair, err := s.tokens.MintPair(user)
	if err != nil {
		return types.TokenPair{}, fmt.Errorf("mint token pair: %w", err)
	}

	if err := s.repo.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return types.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}
	return pair, nil
}

// RotateSession validates a presented refresh token and, when it is
// both cryptographically valid and equal to the stored current token,
// issues a replacement pair. Every successful rotation invalidates
// the token that was just used. All failure reasons collapse to
// ErrUnauthorized.
func (s *AuthService) RotateSession(ctx context.Context, presented string) (types.TokenPair, error) {
	if strings.TrimSpace(presented) == "" {
		return types.TokenPair{}, ErrUnauthorized
	}

	userID, err := s.tokens.VerifyRefresh(presented)
	if err != nil {
		return types.TokenPair{}, ErrUnauthorized
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.TokenPair{}, ErrUnauthorized
	}

	// Revocation check: a token that verifies but is no longer the
	// stored current one (newer login, prior rotation, or logout) is
	// dead.
	if user.RefreshToken == "" || user.RefreshToken != presented {
		return types.TokenPair{}, ErrUnauthorized
	}

	return s.IssueSession(ctx, user.ID)
}

// TerminateSession clears the stored refresh token unconditionally.
// Previously issued refresh tokens fail rotation from here on; a
// still-unexpired access token cannot be revoked and runs out on its
// own short TTL.
func (s *AuthService) TerminateSession(ctx context.Context, userID int) error {
	return s.repo.SetRefreshToken(ctx, userID, "")
}
