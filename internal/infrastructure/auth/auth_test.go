package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/damon-houk/kantor-sync/internal/domain/entity"
)

const testSecret = "sandbox-secret"

func TestIssueAndVerify(t *testing.T) {
	token, err := Issue(testSecret, "user-1", "user@example.com", time.Hour)
	require.NoError(t, err)
	assert.True(t, LooksLikeJWT(token))

	claims, err := Verify(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.User())
	assert.Equal(t, "user@example.com", claims.Email)

	t.Run("Wrong secret", func(t *testing.T) {
		_, err := Verify("other", token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Non-positive ttl", func(t *testing.T) {
		forever, err := Issue(testSecret, "user-1", "", -time.Minute)
		require.NoError(t, err)
		_, err = Verify(testSecret, forever)
		assert.NoError(t, err)
	})

	t.Run("Empty secret", func(t *testing.T) {
		_, err := Issue("", "user-1", "", time.Hour)
		assert.Error(t, err)
	})
}

func TestParseClaims(t *testing.T) {
	token, err := Issue(testSecret, "user-2", "two@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := ParseClaims(token)
	require.NoError(t, err)
	id := claims.Identity()
	assert.Equal(t, "user-2", id.UserID)
	assert.Equal(t, "two@example.com", id.Email)
	assert.WithinDuration(t, time.Now().Add(time.Hour), id.ExpiresAt, time.Minute)
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(time.Now().Add(2*time.Hour)))

	_, err = ParseClaims("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStaticTokenSource(t *testing.T) {
	ctx := context.Background()

	t.Run("Opaque token", func(t *testing.T) {
		tok, err := NewStaticTokenSource("abc").Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "abc", tok)
	})

	t.Run("Empty token", func(t *testing.T) {
		_, err := NewStaticTokenSource("").Token(ctx)
		assert.ErrorIs(t, err, entity.ErrAuth)
	})

	t.Run("Expired JWT", func(t *testing.T) {
		token, err := Issue(testSecret, "user-3", "", time.Hour)
		require.NoError(t, err)

		src := NewStaticTokenSource(token)
		src.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		_, err = src.Token(ctx)
		assert.ErrorIs(t, err, entity.ErrAuth)
		assert.Contains(t, err.Error(), "token expired")
	})
}

func TestIdentityFromToken(t *testing.T) {
	token, err := Issue(testSecret, "user-4", "", time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "user-4", IdentityFromToken(token).UserID)
	assert.Equal(t, "opaque", IdentityFromToken("opaque").UserID)
}

func TestStaticProvider(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := NewStaticProvider("opaque").Subscribe(ctx)

	ev := <-events
	require.True(t, ev.SignedIn())
	assert.Equal(t, "opaque", ev.Identity.UserID)
	tok, err := ev.Tokens.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque", tok)

	unsubscribe()
	_, open := <-events
	assert.False(t, open)
}

func TestNewUserResolver(t *testing.T) {
	signed, err := Issue(testSecret, "user-7", "", time.Hour)
	require.NoError(t, err)

	t.Run("Signed tokens with a secret", func(t *testing.T) {
		resolve := NewUserResolver(testSecret, nil)

		user, err := resolve(signed)
		require.NoError(t, err)
		assert.Equal(t, "user-7", user)

		foreign, err := Issue("other", "user-7", "", time.Hour)
		require.NoError(t, err)
		_, err = resolve(foreign)
		assert.ErrorIs(t, err, ErrInvalidToken)

		_, err = resolve("opaque")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Allow list", func(t *testing.T) {
		resolve := NewUserResolver("", []string{"alice-token"})

		user, err := resolve("alice-token")
		require.NoError(t, err)
		assert.Equal(t, "alice-token", user)

		_, err = resolve("mallory-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Open sandbox reads claims", func(t *testing.T) {
		resolve := NewUserResolver("", nil)

		user, err := resolve(signed)
		require.NoError(t, err)
		assert.Equal(t, "user-7", user)

		expired, err := Issue(testSecret, "user-7", "", time.Nanosecond)
		require.NoError(t, err)
		time.Sleep(time.Second)
		_, err = resolve(expired)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
