package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/relaywire/relayd/internal/core"
)

// ErrInvalidToken is the only error callers see for a bad token. Expired,
// malformed and badly-signed tokens are indistinguishable on purpose.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the token payload: registered expiry/issued-at/subject plus the
// full identity, so validation needs no store lookup.
type Claims struct {
	Identity core.Identity `json:"user"`
	jwt.RegisteredClaims
}

// JWTConfig holds token signing configuration. The secret is read once at
// process start and never rotated.
type JWTConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// GenerateToken issues a signed token carrying the identity.
func GenerateToken(cfg *JWTConfig, subjectID int64, identity core.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		Identity: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   fmt.Sprintf("%d", subjectID),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken checks the signature and expiry and returns the embedded
// identity. Any failure maps to ErrInvalidToken.
func ValidateToken(cfg *JWTConfig, tokenString string) (core.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.Secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return core.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return core.Identity{}, ErrInvalidToken
	}
	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return core.Identity{}, ErrInvalidToken
	}

	return claims.Identity, nil
}
