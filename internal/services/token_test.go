package services

import (
	"testing"
	"time"

	"github.com/cliphub/apiserver/config"
	"github.com/cliphub/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenManagerRequiresSecrets(t *testing.T) {
	_, err := NewTokenManager(config.JWTConfig{RefreshSecret: "r"})
	assert.Error(t, err)

	_, err = NewTokenManager(config.JWTConfig{AccessSecret: "a"})
	assert.Error(t, err)
}

func TestMintAndVerifyPair(t *testing.T) {
	tm := testTokenManager(t)
	user := types.User{ID: 42, Username: "ana", Email: "ana@x.com"}

	pair, err := tm.MintPair(user)
	require.NoError(t, err)

	accessID, err := tm.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, 42, accessID)

	refreshID, err := tm.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, 42, refreshID)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	tm := testTokenManager(t)
	pair, err := tm.MintPair(types.User{ID: 1, Username: "ana"})
	require.NoError(t, err)

	_, err = tm.VerifyAccess(pair.RefreshToken)
	assert.Error(t, err)

	_, err = tm.VerifyRefresh(pair.AccessToken)
	assert.Error(t, err)
}

func TestMintPairIsUniquePerCall(t *testing.T) {
	tm := testTokenManager(t)
	user := types.User{ID: 1, Username: "ana"}

	first, err := tm.MintPair(user)
	require.NoError(t, err)
	second, err := tm.MintPair(user)
	require.NoError(t, err)

	// Same user, same second: the jti still distinguishes them.
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
}

func TestTTLDefaults(t *testing.T) {
	tm, err := NewTokenManager(config.JWTConfig{AccessSecret: "a", RefreshSecret: "r"})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, tm.AccessTTL())
	assert.Equal(t, 7*24*time.Hour, tm.RefreshTTL())
}
