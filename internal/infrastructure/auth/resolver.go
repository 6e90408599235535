package auth

import (
	"slices"
	"time"
)

// NewUserResolver returns the function the sandbox server uses to map bearer
// tokens onto users. With a secret only tokens it signed are accepted. Without
// one, allowed (when non-empty) lists the accepted tokens and the user is read
// from the token's claims, or is the token itself when it is opaque.
func NewUserResolver(secret string, allowed []string) func(token string) (string, error) {
	return func(token string) (string, error) {
		if secret != "" {
			claims, err := Verify(secret, token)
			if err != nil {
				return "", err
			}
			return claims.User(), nil
		}

		if len(allowed) > 0 && !slices.Contains(allowed, token) {
			return "", ErrInvalidToken
		}

		if LooksLikeJWT(token) {
			claims, err := ParseClaims(token)
			if err != nil {
				return "", err
			}
			if claims.Expired(time.Now()) {
				return "", ErrInvalidToken
			}
		}

		id := IdentityFromToken(token)
		if id.UserID == "" {
			return "", ErrInvalidToken
		}
		return id.UserID, nil
	}
}
