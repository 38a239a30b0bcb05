package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cliphub/apiserver/types"
	"github.com/lib/pq"
)

const uniqueViolationCode = "23505"

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, email, full_name, avatar_url, cover_image_url, password_hash, refresh_token, created_at, updated_at`

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	var coverImage, refreshToken sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.FullName,
		&user.AvatarURL,
		&coverImage,
		&user.PasswordHash,
		&refreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.CoverImageURL = coverImage.String
	user.RefreshToken = refreshToken.String
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByUsernameOrEmail looks a user up by either identifier. Empty
// arguments never match; callers pass at least one.
func (r *UserRepository) GetByUsernameOrEmail(ctx context.Context, username, email string) (types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE (username = $1 AND $1 <> '') OR (email = $2 AND $2 <> '')`
	return scanUser(r.db.QueryRowContext(ctx, query, username, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (username, email, full_name, avatar_url, cover_image_url, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Username,
		user.Email,
		user.FullName,
		user.AvatarURL,
		nullIfEmpty(user.CoverImageURL),
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			return types.User{}, ErrConflict
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateProfile changes display fields only. Credential and session
// columns are untouched.
func (r *UserRepository) UpdateProfile(ctx context.Context, id int, fullName, email string) (types.User, error) {
	const query = `
		UPDATE users
		SET full_name = $1,
			email = $2,
			updated_at = $3
		WHERE id = $4`
	if err := r.exec(ctx, query, fullName, email, time.Now(), id); err != nil {
		return types.User{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) UpdateAvatarURL(ctx context.Context, id int, url string) (types.User, error) {
	const query = `
		UPDATE users
		SET avatar_url = $1,
			updated_at = $2
		WHERE id = $3`
	if err := r.exec(ctx, query, url, time.Now(), id); err != nil {
		return types.User{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) UpdateCoverImageURL(ctx context.Context, id int, url string) (types.User, error) {
	const query = `
		UPDATE users
		SET cover_image_url = $1,
			updated_at = $2
		WHERE id = $3`
	if err := r.exec(ctx, query, url, time.Now(), id); err != nil {
		return types.User{}, err
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id int, hash string) error {
	const query = `
		UPDATE users
		SET password_hash = $1,
			updated_at = $2
		WHERE id = $3`
	return r.exec(ctx, query, hash, time.Now(), id)
}

// SetRefreshToken overwrites the stored refresh token for the user.
// An empty token clears the active session. This touches only the
// session column so a pure session update can never trip over
// profile-field constraints.
func (r *UserRepository) SetRefreshToken(ctx context.Context, id int, token string) error {
	const query = `
		UPDATE users
		SET refresh_token = $1,
			updated_at = $2
		WHERE id = $3`
	return r.exec(ctx, query, nullIfEmpty(token), time.Now(), id)
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			return ErrConflict
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
