package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/milletlink/milletlink-backend/pkg/config"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
)

// IdentityClaims carries the relay identity binding.
type IdentityClaims struct {
	jwt.RegisteredClaims
}

// GenerateIdentityToken mints a short-lived token binding a user identity to a
// relay connection. Used by the web app's session layer and by tests.
func GenerateIdentityToken(cfg config.JWTConfig, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing identity token: %w", err)
	}
	return signed, nil
}

// VerifyIdentityToken validates the token and returns the bound user id.
func VerifyIdentityToken(cfg config.JWTConfig, raw string) (uuid.UUID, error) {
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}, jwt.WithIssuer(cfg.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid identity token")
	}
	if !token.Valid {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid identity token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token subject")
	}
	return userID, nil
}
