package server

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonathan/ink-prompts/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestJWTService(_ *testing.T, issuer string, ttl time.Duration) *JWTService {
	return NewJWTService(&config.JWTConfig{
		Secret: "test-secret-key-for-jwt-signing-minimum-32-bytes",
		Issuer: issuer,
		TTL:    ttl,
	})
}

func TestJWTService_GenerateToken(t *testing.T) {
	service := setupTestJWTService(t, "", time.Hour)

	token, err := service.GenerateToken("user-123")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3, "JWT should have 3 parts separated by dots")

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.Subject)
}

func TestJWTService_GenerateToken_RequiresSubject(t *testing.T) {
	service := setupTestJWTService(t, "", time.Hour)
	_, err := service.GenerateToken("")
	assert.Error(t, err)
}

func TestJWTService_ValidateToken_Expired(t *testing.T) {
	service := setupTestJWTService(t, "", -time.Minute)

	token, err := service.GenerateToken("user-123")
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token expired")
}

func TestJWTService_ValidateToken_WrongSecret(t *testing.T) {
	service := setupTestJWTService(t, "", time.Hour)
	other := NewJWTService(&config.JWTConfig{Secret: "a-completely-different-secret-key", TTL: time.Hour})

	token, err := other.GenerateToken("user-123")
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token signature")
}

func TestJWTService_ValidateToken_Issuer(t *testing.T) {
	service := setupTestJWTService(t, "ink-auth", time.Hour)
	foreign := setupTestJWTService(t, "someone-else", time.Hour)

	token, err := service.GenerateToken("user-123")
	require.NoError(t, err)
	_, err = service.ValidateToken(token)
	assert.NoError(t, err)

	token, err = foreign.GenerateToken("user-123")
	require.NoError(t, err)
	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTService_ValidateToken_RejectsOtherAlgorithms(t *testing.T) {
	service := setupTestJWTService(t, "", time.Hour)

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.ValidateToken(signed)
	assert.Error(t, err)
}

func TestJWTService_ValidateToken_Malformed(t *testing.T) {
	service := setupTestJWTService(t, "", time.Hour)

	_, err := service.ValidateToken("")
	assert.Error(t, err)

	_, err = service.ValidateToken("not.a.jwt")
	assert.Error(t, err)
}

func TestJWTService_AsTokenValidator(t *testing.T) {
	service := setupTestJWTService(t, "", time.Hour)
	token, err := service.GenerateToken("user-456")
	require.NoError(t, err)

	subject, err := service.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	sub, err := subject.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "user-456", sub)
}
