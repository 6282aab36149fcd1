package postgres

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/nexus-mcp/pkg/storage"
)

func setupRedisClientTest(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	client, err := NewRedisClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNewRedisClient(t *testing.T) {
	client, mr := setupRedisClientTest(t)

	assert.NoError(t, client.Ping(context.Background()))
	require.NotNil(t, client.GetClient())
	require.NotNil(t, client.GetPoolStats())

	require.NoError(t, client.GetClient().Set(context.Background(), "nexus-mcp:edit-mode", "1", 0).Err())
	got, err := mr.Get("nexus-mcp:edit-mode")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestNewRedisClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "invalid URL", url: "not-a-url://", wantErr: "invalid redis URL"},
		{name: "unreachable", url: "redis://127.0.0.1:1", wantErr: "failed to connect to redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := storage.DefaultConfig()
			cfg.RedisURL = tt.url

			client, err := NewRedisClient(cfg)
			require.Error(t, err)
			assert.Nil(t, client)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewRedisClient_Overrides(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.RequireAuth("secret")

	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.RedisPassword = "secret"
	cfg.RedisDB = 2
	cfg.RedisPoolSize = 3

	client, err := NewRedisClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	opts := client.GetClient().Options()
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 3, opts.PoolSize)
}
