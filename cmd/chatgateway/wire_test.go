package main

import (
	"context"
	"testing"

	"chatcore/global/config"
	"chatcore/module/chat/message"
	"chatcore/service/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenStore_Memory(t *testing.T) {
	cfg := &config.Config{StoreDriver: config.StoreMemory}
	st, closer, err := openStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &message.MemoryStore{}, st)
	assert.NoError(t, closer.Close())

	_, _, err = openStore(context.Background(), &config.Config{StoreDriver: "cassandra"}, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenPublisher_None(t *testing.T) {
	pub, err := openPublisher(&config.Config{EventsDriver: config.EventsNone}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, events.Noop{}, pub)

	_, err = openPublisher(&config.Config{EventsDriver: "carrier-pigeon"}, zap.NewNop())
	assert.Error(t, err)
}

func TestOpenPresence_DisabledWithoutRedis(t *testing.T) {
	p, closer, err := openPresence(context.Background(), &config.Config{}, "node-1", zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, closer.Close())
}
