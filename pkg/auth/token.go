package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/paygrid/paygrid-backend/pkg/config"
)

// AccessTokenTTL bounds how long an issued token stays valid.
const AccessTokenTTL = 12 * time.Hour

// Claims identifies the calling account. Role mirrors the account's platform
// role at issue time; authorization decisions re-check the database, the claim
// only routes requests past role-gated middleware.
type Claims struct {
	Account string `json:"account"`
	Role    string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// NewAccessToken issues a signed token for an account.
func NewAccessToken(cfg config.JWTConfig, account, role string) (string, error) {
	if account == "" {
		return "", errors.New("account is required")
	}
	now := time.Now()
	claims := Claims{
		Account: account,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   account,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseAccessToken verifies the signature and issuer and returns the claims.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Account == "" {
		return nil, errors.New("token carries no account")
	}
	return claims, nil
}
