// Package token mints and validates the HS256 access tokens that
// authenticate WebSocket and SSE connections via the `token` query
// parameter.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loom-ai/loom/internal/config"
)

var ErrInvalidToken = errors.New("invalid token")

type AccessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// Mint issues a signed access token for the given user.
func Mint(userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}

	now := time.Now()
	expiresAt := now.Add(config.GetTokenLifetime())
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(config.GetJWTSecret())
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses a token string and returns the user id it carries.
// Expired, malformed or wrongly signed tokens all return ErrInvalidToken.
func Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return config.GetJWTSecret(), nil
	})
	if err != nil {
		log.Debug().Err(err).Msg("Failed to parse access token")
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
