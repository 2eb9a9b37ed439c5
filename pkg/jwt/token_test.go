package jwt

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	svc := NewTokenService("secret", "bulkcomms", time.Hour)
	token, err := svc.Issue("u1", "admin@example.com", "admin")
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
}

func TestParseRejectsBadTokens(t *testing.T) {
	svc := NewTokenService("secret", "bulkcomms", time.Hour)

	other, err := NewTokenService("other", "bulkcomms", time.Hour).Issue("u1", "", "")
	require.NoError(t, err)
	_, err = svc.Parse(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewTokenService("secret", "someone-else", time.Hour).Issue("u1", "", "")
	require.NoError(t, err)
	_, err = svc.Parse(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, gojwt.MapClaims{"sub": "u1"}).SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.Parse(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseExpired(t *testing.T) {
	svc := NewTokenService("secret", "", time.Hour)
	claims := Claims{RegisteredClaims: gojwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.Parse(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestIssueWithoutSecret(t *testing.T) {
	_, err := NewTokenService("", "", 0).Issue("u1", "", "")
	assert.Error(t, err)
}
