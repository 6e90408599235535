package service

import (
	"context"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

// IdentityEvent is a sign-in or sign-out notification from the identity provider.
// A nil Identity means the user signed out.
type IdentityEvent struct {
	Identity *entity.Identity
	Tokens   TokenSource
}

// SignedIn reports whether the event is a sign-in
func (e IdentityEvent) SignedIn() bool {
	return e.Identity != nil
}

// IdentityProvider streams sign-in state changes
type IdentityProvider interface {
	// Subscribe returns the event stream and a function that ends the subscription
	Subscribe(ctx context.Context) (<-chan IdentityEvent, func())
}
