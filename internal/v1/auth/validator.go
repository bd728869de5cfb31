// Package auth implements verification of the short-lived bearer tokens
// presented at the websocket handshake.
//
// Tokens are HS256 JWTs signed with a process-wide shared secret. The REST
// surface mints them; the core only ever verifies. Expiry is absolute and
// enforced during parsing.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pier0x/bottel/internal/v1/logging"
)

// CustomClaims are the claims carried by a presence token. Subject is the
// participant id; Name and BodyColor seed the avatar.
type CustomClaims struct {
	Name      string `json:"name"`
	BodyColor string `json:"bodyColor"`
	jwt.RegisteredClaims
}

// Validator verifies presence tokens against the shared secret.
type Validator struct {
	secret []byte
}

// NewValidator creates a Validator for the given shared secret.
func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// ValidateToken parses and verifies a token string. Only HS256 is accepted;
// anything else — wrong algorithm, bad signature, expired — is an error.
func (v *Validator) ValidateToken(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("token is invalid")
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, errors.New("failed to cast claims to CustomClaims")
	}

	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}

	return claims, nil
}

// Mint signs a token for the given participant. It lives here so the REST
// surface and the tests share one implementation with the validator.
func Mint(secret, agentID, name, bodyColor string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		Name:      name,
		BodyColor: bodyColor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// GetAllowedOriginsFromEnv reads a comma-separated origin list from the
// environment, falling back to the provided defaults.
func GetAllowedOriginsFromEnv(envVarName string, defaultEnvs []string) []string {
	// Example: ALLOWED_ORIGINS="http://localhost:3000,https://your-app.com"
	originsStr := os.Getenv(envVarName)
	if originsStr == "" {
		logging.Warn(context.Background(), fmt.Sprintf("%s environment variable not set. Using default development origins:\n%s", envVarName, defaultEnvs))
		return defaultEnvs
	}
	return strings.Split(originsStr, ",")
}
