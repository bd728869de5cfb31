package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestMintAndValidateRoundTrip(t *testing.T) {
	tokenString, err := Mint(testSecret, "P1", "Alice", "#3B82F6", 15*time.Minute)
	require.NoError(t, err)

	v := NewValidator(testSecret)
	claims, err := v.ValidateToken(tokenString)
	require.NoError(t, err)

	assert.Equal(t, "P1", claims.Subject)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "#3B82F6", claims.BodyColor)
}

func TestValidateExpiredToken(t *testing.T) {
	tokenString, err := Mint(testSecret, "P1", "Alice", "#3B82F6", -1*time.Minute)
	require.NoError(t, err)

	v := NewValidator(testSecret)
	_, err = v.ValidateToken(tokenString)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestValidateWrongSecret(t *testing.T) {
	tokenString, err := Mint("another-secret-another-secret-ab", "P1", "Alice", "#3B82F6", time.Minute)
	require.NoError(t, err)

	v := NewValidator(testSecret)
	_, err = v.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestValidateRejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "P1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	v := NewValidator(testSecret)
	_, err = v.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestValidateRejectsMissingSubject(t *testing.T) {
	tokenString, err := Mint(testSecret, "", "Alice", "#3B82F6", time.Minute)
	require.NoError(t, err)

	v := NewValidator(testSecret)
	_, err = v.ValidateToken(tokenString)
	assert.Error(t, err)
}

func TestValidateGarbage(t *testing.T) {
	v := NewValidator(testSecret)
	_, err := v.ValidateToken("not-a-token")
	assert.Error(t, err)
}
