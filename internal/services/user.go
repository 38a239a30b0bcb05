package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/cliphub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsernameOrEmail(ctx context.Context, username, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateProfile(ctx context.Context, id int, fullName, email string) (types.User, error)
	UpdateAvatarURL(ctx context.Context, id int, url string) (types.User, error)
	UpdateCoverImageURL(ctx context.Context, id int, url string) (types.User, error)
	UpdatePasswordHash(ctx context.Context, id int, hash string) error
	SetRefreshToken(ctx context.Context, id int, token string) error
}

// RegisterParams carries the fields needed to create an account. The
// avatar upload happens before Register is called so a failed upload
// never leaves a user row behind.
type RegisterParams struct {
	FullName      string
	Username      string
	Email         string
	Password      string
	AvatarURL     string
	CoverImageURL string
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByUsernameOrEmail(ctx context.Context, username, email string) (types.User, error) {
	return s.repo.GetByUsernameOrEmail(ctx, strings.ToLower(strings.TrimSpace(username)), strings.TrimSpace(email))
}

// Register hashes the password and creates the account. Usernames are
// normalized to lower case before storage.
func (s *UserService) Register(ctx context.Context, params RegisterParams) (types.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	return s.repo.Create(ctx, types.User{
		Username:      strings.ToLower(strings.TrimSpace(params.Username)),
		Email:         strings.TrimSpace(params.Email),
		FullName:      strings.TrimSpace(params.FullName),
		AvatarURL:     params.AvatarURL,
		CoverImageURL: params.CoverImageURL,
		PasswordHash:  string(hashed),
	})
}

func (s *UserService) UpdateProfile(ctx context.Context, id int, fullName, email string) (types.User, error) {
	if strings.TrimSpace(fullName) == "" || strings.TrimSpace(email) == "" {
		return types.User{}, fmt.Errorf("%w: full name and email are required", ErrInvalidInput)
	}
	return s.repo.UpdateProfile(ctx, id, strings.TrimSpace(fullName), strings.TrimSpace(email))
}

func (s *UserService) UpdateAvatarURL(ctx context.Context, id int, url string) (types.User, error) {
	return s.repo.UpdateAvatarURL(ctx, id, url)
}

func (s *UserService) UpdateCoverImageURL(ctx context.Context, id int, url string) (types.User, error) {
	return s.repo.UpdateCoverImageURL(ctx, id, url)
}

// ChangePassword verifies the old password before storing a hash of
// the new one.
func (s *UserService) ChangePassword(ctx context.Context, id int, oldPassword, newPassword string) error {
	if newPassword == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return fmt.Errorf("%w: incorrect old password", ErrInvalidInput)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePasswordHash(ctx, id, string(hashed))
}
