// Package auth mints and verifies the signed session tokens handed to
// clients after login.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the account and the session row the token belongs to.
// The session id travels as the registered "jti" claim.
type Claims struct {
	jwt.RegisteredClaims
	Account string `json:"account"`
}

// SessionID returns the id of the session row backing the token.
func (c *Claims) SessionID() string { return c.ID }

// GenerateToken signs an HS256 token for the session that expires after
// validity.
func GenerateToken(account, sessionID string, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Account: account,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken verifies signature and expiry. Expired tokens yield
// common.ErrTokenExpired, anything else unusable yields common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Account == "" || claims.ID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
