// Package auth reads and issues the bearer tokens used against the ledger
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

// ErrInvalidToken is returned for tokens that cannot be parsed or verified
var ErrInvalidToken = errors.New("invalid token")

// Claims are the bearer token fields the client cares about
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// User returns user_id, falling back to the subject
func (c *Claims) User() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Expired reports whether the token carries an expiry before now
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Identity converts the claims into the signed-in identity
func (c *Claims) Identity() entity.Identity {
	id := entity.Identity{
		UserID: c.User(),
		Email:  c.Email,
	}
	if c.ExpiresAt != nil {
		id.ExpiresAt = c.ExpiresAt.Time
	}
	return id
}

// LooksLikeJWT reports whether token has the three-segment JWT shape
func LooksLikeJWT(token string) bool {
	return strings.Count(token, ".") == 2
}

// ParseClaims reads the claims of token without verifying its signature
func ParseClaims(token string) (*Claims, error) {
	claims := new(Claims)
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Issue signs an HS256 token for userID valid for ttl
func Issue(secret, userID, email string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is empty")
	}

	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Verify checks an HS256 token signed with secret and returns its claims
func Verify(secret, token string) (*Claims, error) {
	claims := new(Claims)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.User() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
