package auth

import (
	"context"
	"time"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/domain/service"
)

// StaticTokenSource serves a fixed bearer token until its expiry passes
type StaticTokenSource struct {
	token     string
	expiresAt time.Time
	now       func() time.Time
}

// NewStaticTokenSource creates a token source for token. A JWT's exp claim is honoured.
func NewStaticTokenSource(token string) *StaticTokenSource {
	src := &StaticTokenSource{token: token, now: time.Now}
	if LooksLikeJWT(token) {
		if claims, err := ParseClaims(token); err == nil && claims.ExpiresAt != nil {
			src.expiresAt = claims.ExpiresAt.Time
		}
	}
	return src
}

// Token returns the token, or an auth error once it has expired
func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", entity.NewAuthError("no token configured", 0)
	}
	if !s.expiresAt.IsZero() && !s.expiresAt.After(s.now()) {
		return "", entity.NewAuthError("token expired", 0)
	}
	return s.token, nil
}

// IdentityFromToken derives the identity carried by token. Opaque tokens
// identify the user by the token itself.
func IdentityFromToken(token string) entity.Identity {
	if LooksLikeJWT(token) {
		if claims, err := ParseClaims(token); err == nil && claims.User() != "" {
			return claims.Identity()
		}
	}
	return entity.Identity{UserID: token}
}

// StaticProvider is an identity provider for a single, already known token.
// It reports one sign-in and then stays quiet until the subscription ends.
type StaticProvider struct {
	token string
}

// NewStaticProvider creates a provider for token
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{token: token}
}

// Subscribe implements service.IdentityProvider
func (p *StaticProvider) Subscribe(ctx context.Context) (<-chan service.IdentityEvent, func()) {
	events := make(chan service.IdentityEvent, 1)
	ctx, cancel := context.WithCancel(ctx)

	id := IdentityFromToken(p.token)
	events <- service.IdentityEvent{
		Identity: &id,
		Tokens:   NewStaticTokenSource(p.token),
	}

	go func() {
		<-ctx.Done()
		close(events)
	}()

	return events, cancel
}
