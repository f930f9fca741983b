// Package auth issues and validates the access tokens instances use to call
// the sync API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/klinikos/medsync/internal/common"
)

// Claims carries the standard registered claims plus the authenticated
// instance's identifier.
type Claims struct {
	jwt.RegisteredClaims
	InstanceID string
}

func GenerateToken(instanceID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		InstanceID: instanceID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetInstanceIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", err
	}

	if !token.Valid {
		return "", common.ErrInvalidToken
	}

	return claims.InstanceID, nil
}
