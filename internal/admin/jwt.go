// Package admin implements the administrative auth surface: an API key is
// exchanged for a short-lived JWT, which then gates the registry's list
// endpoint.
package admin

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"meldid/pkg/domainerrors"
)

const tokenTTL = 15 * time.Minute

// Claims are the admin token claims.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService mints and validates admin tokens with an HS256 shared key.
type JWTService struct {
	signingKey []byte
	issuer     string
}

func NewJWTService(signingKey, issuer string) *JWTService {
	return &JWTService{signingKey: []byte(signingKey), issuer: issuer}
}

// Generate mints a short-lived admin token.
func (s *JWTService) Generate() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// Validate checks signature, expiry, and the admin role.
func (s *JWTService) Validate(tokenString string) error {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domainerrors.New(domainerrors.CodeUnauthorized, "token expired")
		}
		return domainerrors.Wrap(domainerrors.CodeUnauthorized, "invalid token", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Role != "admin" {
		return domainerrors.New(domainerrors.CodeUnauthorized, "missing admin role")
	}
	return nil
}
