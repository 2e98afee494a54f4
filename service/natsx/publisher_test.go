package natsx

import (
	"context"
	"os"
	"testing"
	"time"

	"chatcore/service/events"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMsg_SetsHeaders(t *testing.T) {
	msg := buildMsg(events.Record{Topic: "chat.events", Key: "alice_bob", ID: "evt-1", Value: []byte(`{}`)})

	assert.Equal(t, "chat.events", msg.Subject)
	assert.Equal(t, "evt-1", msg.Header.Get(HeaderMsgID))
	assert.Equal(t, "alice_bob", msg.Header.Get(HeaderKey))
	assert.Equal(t, []byte(`{}`), msg.Data)
}

func TestSplitServers(t *testing.T) {
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, SplitServers(" nats://a:4222, ,nats://b:4222"))
	assert.Nil(t, SplitServers(""))
}

func TestConnect_RequiresServers(t *testing.T) {
	_, err := Connect(NatsxConfig{})
	assert.Error(t, err)
}

// TestPublisher_RoundTrip needs a live server at NATS_URL.
func TestPublisher_RoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	nc, err := Connect(NatsxConfig{Servers: SplitServers(url), Name: "chat-test"})
	require.NoError(t, err)
	sub, err := nc.SubscribeSync("chat.test.events")
	require.NoError(t, err)

	pubConn, err := Connect(NatsxConfig{Servers: SplitServers(url), Name: "chat-test-pub"})
	require.NoError(t, err)
	p := NewPublisher(pubConn)
	require.NoError(t, p.Publish(context.Background(), events.Record{Topic: "chat.test.events", Key: "a_b", ID: "x1", Value: []byte("payload")}))
	require.NoError(t, p.Close())

	var msg *nats.Msg
	msg, err = sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "x1", msg.Header.Get(HeaderMsgID))
	assert.Equal(t, "payload", string(msg.Data))
	nc.Close()
}
