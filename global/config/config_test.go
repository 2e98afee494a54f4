package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	os.Unsetenv("STORE_DRIVER")

	c, err := Load(writeEnv(t, ""))
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, StoreMemory, c.StoreDriver)
	assert.Equal(t, EventsNone, c.EventsDriver)
	assert.Equal(t, 3*time.Second, c.StoreTimeout)
	assert.Equal(t, 50, c.PageSizeDefault)
	assert.True(t, c.TrustGatewayHeader)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://chat@localhost/chat")
	t.Setenv("KAFKA_BROKERS", "")
	os.Unsetenv("KAFKA_BROKERS")

	c, err := Load(writeEnv(t, "EVENTS_DRIVER=kafka\nKAFKA_BROKERS=k1:9092, k2:9092\nSTORE_DRIVER=mongo\n"))
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, c.StoreDriver, "environment wins over the file")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Brokers())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			StoreDriver:      StoreMemory,
			EventsDriver:     EventsNone,
			StoreTimeout:     time.Second,
			WriteTimeout:     time.Second,
			PingInterval:     time.Second,
			PongWait:         2 * time.Second,
			MaxContentLength: 10,
			PageSizeDefault:  10,
			PageSizeMax:      20,
		}
	}

	c := base()
	require.NoError(t, c.Validate())

	c = base()
	c.StoreDriver = StorePostgres
	assert.ErrorContains(t, c.Validate(), "DATABASE_URL")

	c = base()
	c.StoreDriver = "sqlite"
	assert.Error(t, c.Validate())

	c = base()
	c.EventsDriver = EventsNats
	assert.ErrorContains(t, c.Validate(), "NATS_URL")

	c = base()
	c.PongWait = c.PingInterval
	assert.ErrorContains(t, c.Validate(), "PONG_WAIT")
}

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
