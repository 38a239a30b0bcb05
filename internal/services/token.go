package services

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/cliphub/apiserver/config"
	"github.com/cliphub/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims are the claims carried by an access token. Identity
// fields ride along so request handling does not need a store lookup.
type AccessClaims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies the two token kinds. Access tokens
// are short-lived and verified statelessly; refresh tokens are
// longer-lived and additionally checked against the user record by
// AuthService before they are honored.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenManager constructs a TokenManager from config.
func NewTokenManager(cfg config.JWTConfig) (*TokenManager, error) {
	if strings.TrimSpace(cfg.AccessSecret) == "" {
		return nil, errors.New("access token secret is required")
	}
	if strings.TrimSpace(cfg.RefreshSecret) == "" {
		return nil, errors.New("refresh token secret is required")
	}

	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}

	return &TokenManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

// MintPair creates a fresh access/refresh token pair for the user.
func (m *TokenManager) MintPair(user types.User) (types.TokenPair, error) {
	access, err := m.mintAccess(user)
	if err != nil {
		return types.TokenPair{}, err
	}
	refresh, err := m.mintRefresh(user.ID)
	if err != nil {
		return types.TokenPair{}, err
	}
	return types.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *TokenManager) mintAccess(user types.User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Username: user.Username,
		Email:    user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.accessSecret)
}

func (m *TokenManager) mintRefresh(userID int) (string, error) {
	now := time.Now()
	// The jti makes every mint unique; without it two rotations inside
	// the same second would produce byte-identical tokens.
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.refreshSecret)
}

// VerifyAccess checks signature and expiry of an access token and
// returns the user ID encoded in its subject.
func (m *TokenManager) VerifyAccess(tokenString string) (int, error) {
	claims := AccessClaims{}
	if err := m.parse(tokenString, &claims, m.accessSecret); err != nil {
		return 0, err
	}
	return subjectUserID(claims.Subject)
}

// VerifyRefresh checks signature and expiry of a refresh token and
// returns the user ID encoded in its subject. It does not consult the
// user record; that comparison belongs to AuthService.
func (m *TokenManager) VerifyRefresh(tokenString string) (int, error) {
	claims := jwt.RegisteredClaims{}
	if err := m.parse(tokenString, &claims, m.refreshSecret); err != nil {
		return 0, err
	}
	return subjectUserID(claims.Subject)
}

func (m *TokenManager) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

func subjectUserID(subject string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(subject))
	if err != nil || id < 1 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}
