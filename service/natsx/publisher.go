package natsx

import (
	"context"
	"fmt"

	"chatcore/service/events"

	"github.com/nats-io/nats.go"
)

const (
	HeaderMsgID = "Nats-Msg-Id"
	HeaderKey   = "Chat-Key"
)

// Publisher sends events on core NATS. The subject is the record topic.
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

var _ events.Publisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, r events.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.nc.PublishMsg(buildMsg(r)); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Close drains pending publishes before closing the connection.
func (p *Publisher) Close() error {
	return p.nc.Drain()
}

func buildMsg(r events.Record) *nats.Msg {
	msg := nats.NewMsg(r.Topic)
	msg.Data = r.Value
	if r.ID != "" {
		msg.Header.Set(HeaderMsgID, r.ID)
	}
	if r.Key != "" {
		msg.Header.Set(HeaderKey, r.Key)
	}
	return msg
}
