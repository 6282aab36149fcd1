package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetUserByTokenHash(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	store := NewStore(db)
	ctx := context.Background()

	u, err := store.GetUserByTokenHash(ctx, HashToken("alice-token"))
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.IsSuperuser)

	_, err = store.GetUserByTokenHash(ctx, HashToken("dave-token"))
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = store.GetUserByTokenHash(ctx, HashToken("nobody"))
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStoreUserGrants(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	store := NewStore(db)
	ctx := context.Background()

	ops, edit, err := store.UserGrants(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"manage_createFabric", "manage_getFabric", "manage_getFabrics"}, ops)
	assert.True(t, edit)

	ops, edit, err = store.UserGrants(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"manage_getFabric", "manage_getFabrics"}, ops)
	assert.False(t, edit)

	ops, edit, err = store.UserGrants(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.False(t, edit)
}

func TestStoreUserClusterIDs(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	store := NewStore(db)

	ids, err := store.UserClusterIDs(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)

	ids, err = store.UserClusterIDs(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStoreClusters(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	store := NewStore(db)
	ctx := context.Background()

	c, err := store.ClusterByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "lab", c.Name)
	assert.Equal(t, "https://lab.example", c.URL)
	assert.Equal(t, "secret", c.Password)

	c, err = store.ClusterByName(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.ID)

	_, err = store.ClusterByName(ctx, "old")
	assert.ErrorIs(t, err, ErrClusterNotFound)

	_, err = store.ClusterByID(ctx, 99)
	assert.ErrorIs(t, err, ErrClusterNotFound)
}

func TestStoreSetUserToken(t *testing.T) {
	db := setupTestDB(t)
	seedTestData(t, db)
	store := NewStore(db)
	ctx := context.Background()

	require.NoError(t, store.SetUserToken(ctx, 3, HashToken("new-token")))
	u, err := store.GetUserByTokenHash(ctx, HashToken("new-token"))
	require.NoError(t, err)
	assert.Equal(t, "carol", u.Username)

	_, err = store.GetUserByTokenHash(ctx, HashToken("carol-token"))
	assert.ErrorIs(t, err, ErrUserNotFound)

	assert.ErrorIs(t, store.SetUserToken(ctx, 99, "x"), ErrUserNotFound)
}
