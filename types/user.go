package types

import "time"

// User represents an account in the system.
// It contains identity, profile, and session metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user,
	// stored lower-cased.
	Username string `json:"username" db:"username"`

	// Email is the user's email address, unique across accounts.
	Email string `json:"email" db:"email"`

	// FullName is the user's display name.
	FullName string `json:"full_name" db:"full_name"`

	// AvatarURL is the public URL of the user's avatar image.
	AvatarURL string `json:"avatar_url" db:"avatar_url"`

	// CoverImageURL is the public URL of the user's cover image.
	// Empty when the user never uploaded one.
	CoverImageURL string `json:"cover_image_url,omitempty" db:"cover_image_url"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// RefreshToken is the single currently valid refresh token for
	// this account, or empty when the user has no active session.
	// A refresh token presented by a client is only honored when it
	// equals this value, which is what makes logout and rotation
	// actually revoke older tokens. Never exposed in API responses.
	RefreshToken string `json:"-" db:"refresh_token"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TokenPair is an access/refresh token pair minted for one user.
// The access token authenticates requests statelessly; the refresh
// token is additionally checked against the stored value on the user
// record before it can mint a replacement pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
