package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCredential(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"abc", "abc"},
		{"  abc  ", "abc"},
		{"", ""},
		{"Bearer ", "Bearer"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCredential(tt.header))
		})
	}
}

func TestResolverResolve(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	r := NewResolver(NewStore(db), ResolverConfig{SharedSecret: "shared", CacheTTL: time.Minute}, nil)
	ctx := context.Background()

	t.Run("shared secret", func(t *testing.T) {
		p, err := r.Resolve(ctx, "shared")
		require.NoError(t, err)
		assert.Equal(t, KindLegacy, p.Kind())
		assert.True(t, p.FullAccess())
	})

	t.Run("superuser", func(t *testing.T) {
		p, err := r.Resolve(ctx, "alice-token")
		require.NoError(t, err)
		assert.Equal(t, KindSuperuser, p.Kind())
		assert.Equal(t, int64(1), p.UserID())
		assert.True(t, p.AllowsCluster(2))
	})

	t.Run("role based user", func(t *testing.T) {
		p, err := r.Resolve(ctx, "bob-token")
		require.NoError(t, err)
		assert.Equal(t, KindUser, p.Kind())
		assert.True(t, p.CanEdit())
		assert.True(t, p.AllowsOperation("manage_createFabric"))
		assert.False(t, p.AllowsOperation("manage_deleteFabric"))
		assert.True(t, p.AllowsCluster(1))
		assert.False(t, p.AllowsCluster(2))
	})

	t.Run("no clusters fails closed", func(t *testing.T) {
		p, err := r.Resolve(ctx, "carol-token")
		require.NoError(t, err)
		assert.False(t, p.CanEdit())
		assert.False(t, p.AllowsCluster(1))
	})

	t.Run("inactive user", func(t *testing.T) {
		_, err := r.Resolve(ctx, "dave-token")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := r.Resolve(ctx, "nope")
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("empty credential", func(t *testing.T) {
		_, err := r.Resolve(ctx, "")
		assert.ErrorIs(t, err, ErrNoCredential)
	})
}

func TestResolverAnonymous(t *testing.T) {
	ctx := context.Background()

	open := NewResolver(nil, ResolverConfig{AllowAnonymous: true}, nil)
	p, err := open.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, KindLegacy, p.Kind())

	closed := NewResolver(nil, ResolverConfig{}, nil)
	_, err = closed.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrNoCredential)

	withSecret := NewResolver(nil, ResolverConfig{SharedSecret: "s", AllowAnonymous: true}, nil)
	_, err = withSecret.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrNoCredential)
}

type countingSource struct {
	UserSource
	lookups int
	fail    error
}

func (c *countingSource) GetUserByTokenHash(ctx context.Context, hash string) (*User, error) {
	c.lookups++
	if c.fail != nil {
		return nil, c.fail
	}
	return c.UserSource.GetUserByTokenHash(ctx, hash)
}

func TestResolverCache(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	src := &countingSource{UserSource: NewStore(db)}
	r := NewResolver(src, ResolverConfig{CacheTTL: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(ctx, "bob-token")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.lookups)

	r.Invalidate(3)
	_, _ = r.Resolve(ctx, "bob-token")
	assert.Equal(t, 1, src.lookups)

	r.Invalidate(2)
	_, _ = r.Resolve(ctx, "bob-token")
	assert.Equal(t, 2, src.lookups)

	r.Purge()
	_, _ = r.Resolve(ctx, "bob-token")
	assert.Equal(t, 3, src.lookups)
}

func TestResolverCacheDisabled(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	src := &countingSource{UserSource: NewStore(db)}
	r := NewResolver(src, ResolverConfig{}, nil)

	_, _ = r.Resolve(context.Background(), "bob-token")
	_, _ = r.Resolve(context.Background(), "bob-token")
	assert.Equal(t, 2, src.lookups)
}

func TestResolverStoreError(t *testing.T) {
	src := &countingSource{fail: errors.New("db down")}
	r := NewResolver(src, ResolverConfig{}, nil)

	_, err := r.Resolve(context.Background(), "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidCredential)
}
