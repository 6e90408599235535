package service

import (
	"context"
	"errors"
	"sync"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
	"github.com/damon-houk/kantor-sync/internal/domain/service"
	"github.com/damon-houk/kantor-sync/internal/infrastructure/logger"
)

// SessionState is the authentication state of the gate
type SessionState string

const (
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionAuthenticating  SessionState = "authenticating"
	SessionAuthenticated   SessionState = "authenticated"
)

// ErrGateRunning is returned by a second concurrent Run
var ErrGateRunning = errors.New("session gate is already subscribed")

// SessionEngine is the part of the sync engine the gate drives
type SessionEngine interface {
	Refresh(ctx context.Context) (SyncState, error)
	Reset()
}

// PostSignInHook runs once per sign-in, after the token source is attached
type PostSignInHook func(ctx context.Context, id entity.Identity)

// SessionGate follows the identity provider and keeps the ledger client and
// the sync engine in step with the signed-in user.
type SessionGate struct {
	auth   service.Authenticator
	engine SessionEngine
	logger logger.Logger

	handleMu sync.Mutex

	mu       sync.Mutex
	state    SessionState
	identity *entity.Identity
	hooks    []PostSignInHook
	running  bool
	changed  chan struct{}
}

// NewSessionGate creates a gate in the Unauthenticated state
func NewSessionGate(auth service.Authenticator, engine SessionEngine, log logger.Logger) *SessionGate {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &SessionGate{
		auth:    auth,
		engine:  engine,
		logger:  log.WithField("component", "session_gate"),
		state:   SessionUnauthenticated,
		changed: make(chan struct{}),
	}
}

// OnSignIn registers a hook run once per sign-in
func (g *SessionGate) OnSignIn(hook PostSignInHook) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.hooks = append(g.hooks, hook)
}

// State returns the current session state
func (g *SessionGate) State() SessionState {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

// Authenticated reports whether a user is signed in
func (g *SessionGate) Authenticated() bool {
	return g.State() == SessionAuthenticated
}

// Identity returns the signed-in user, if any
func (g *SessionGate) Identity() (entity.Identity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.identity == nil {
		return entity.Identity{}, false
	}
	return *g.identity, true
}

// WaitFor blocks until the gate reaches want or ctx is done
func (g *SessionGate) WaitFor(ctx context.Context, want SessionState) error {
	for {
		g.mu.Lock()
		if g.state == want {
			g.mu.Unlock()
			return nil
		}
		ch := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Run subscribes to provider and handles its events until ctx is done or the
// stream ends. Only one Run may be active per gate.
func (g *SessionGate) Run(ctx context.Context, provider service.IdentityProvider) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return ErrGateRunning
	}
	g.running = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
	}()

	events, unsubscribe := provider.Subscribe(ctx)
	defer unsubscribe()

	g.logger.Info("Subscribed to identity provider", nil)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := g.Handle(ctx, ev); err != nil {
				g.logger.Warn("Identity event rejected", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// Handle applies one identity event
func (g *SessionGate) Handle(ctx context.Context, ev service.IdentityEvent) error {
	g.handleMu.Lock()
	defer g.handleMu.Unlock()

	if !ev.SignedIn() {
		g.signOut()
		return nil
	}
	return g.signIn(ctx, ev)
}

func (g *SessionGate) signIn(ctx context.Context, ev service.IdentityEvent) error {
	id := *ev.Identity

	if current, ok := g.Identity(); ok && g.Authenticated() {
		if current.UserID == id.UserID {
			if ev.Tokens != nil {
				g.auth.SetTokenSource(ev.Tokens)
			}
			return nil
		}
		g.signOut()
	}

	g.setState(SessionAuthenticating, nil)

	if ev.Tokens == nil {
		g.setState(SessionUnauthenticated, nil)
		return entity.NewAuthError("sign-in without a token source", 0)
	}
	if _, err := ev.Tokens.Token(ctx); err != nil {
		g.setState(SessionUnauthenticated, nil)
		return err
	}

	g.auth.SetTokenSource(ev.Tokens)

	g.mu.Lock()
	hooks := append([]PostSignInHook(nil), g.hooks...)
	g.mu.Unlock()
	for _, hook := range hooks {
		hook(ctx, id)
	}

	g.setState(SessionAuthenticated, &id)
	g.logger.Info("User signed in", map[string]interface{}{
		"user_id": id.UserID,
	})

	if _, err := g.engine.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		g.logger.Warn("Initial sync failed", map[string]interface{}{
			"user_id": id.UserID,
			"error":   err.Error(),
		})
	}
	return nil
}

func (g *SessionGate) signOut() {
	if g.State() == SessionUnauthenticated {
		return
	}

	g.auth.SetTokenSource(nil)
	g.engine.Reset()
	g.setState(SessionUnauthenticated, nil)
	g.logger.Info("User signed out", nil)
}

func (g *SessionGate) setState(state SessionState, id *entity.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = state
	g.identity = id
	close(g.changed)
	g.changed = make(chan struct{})
}
