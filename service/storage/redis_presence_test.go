package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceKey(t *testing.T) {
	assert.Equal(t, "im:presence:alice", presenceKey("alice"))
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestPresence_OnlineLookupOffline(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()
	user := "u-" + uuid.NewString()

	p := NewPresence(rdb, "node-1", time.Minute, nil)
	require.NoError(t, p.Online(ctx, user))

	node, online, err := p.Lookup(ctx, user)
	require.NoError(t, err)
	assert.True(t, online)
	assert.Equal(t, "node-1", node)

	ttl, err := rdb.TTL(ctx, presenceKey(user)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, p.Offline(ctx, user))
	_, online, err = p.Lookup(ctx, user)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestPresence_OfflineKeepsOtherNode(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()
	user := "u-" + uuid.NewString()

	other := NewPresence(rdb, "node-2", time.Minute, nil)
	require.NoError(t, other.Online(ctx, user))

	mine := NewPresence(rdb, "node-1", time.Minute, nil)
	require.NoError(t, mine.Offline(ctx, user))

	node, online, err := mine.Lookup(ctx, user)
	require.NoError(t, err)
	assert.True(t, online)
	assert.Equal(t, "node-2", node)
	require.NoError(t, other.Offline(ctx, user))
}
