package kafka

import (
	"context"

	"chatcore/service/events"

	"github.com/Shopify/sarama"
)

const headerMsgID = "msg-id"

// Publisher writes events with a sync producer, keyed by room.
type Publisher struct {
	prod sarama.SyncProducer
}

func NewPublisher(prod sarama.SyncProducer) *Publisher {
	return &Publisher{prod: prod}
}

// Dial builds a sync producer for c.
func Dial(c AppConfig) (*Publisher, error) {
	p, err := sarama.NewSyncProducer(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		return nil, err
	}
	return NewPublisher(p), nil
}

var _ events.Publisher = (*Publisher)(nil)

// Publish blocks until the broker acks. sarama has no context support, so ctx
// is only checked before sending.
func (p *Publisher) Publish(ctx context.Context, r events.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: r.Topic,
		Value: sarama.ByteEncoder(r.Value),
	}
	if r.Key != "" {
		msg.Key = sarama.StringEncoder(r.Key)
	}
	if r.ID != "" {
		msg.Headers = []sarama.RecordHeader{{Key: []byte(headerMsgID), Value: []byte(r.ID)}}
	}
	_, _, err := p.prod.SendMessage(msg)
	return err
}

func (p *Publisher) Close() error {
	return p.prod.Close()
}
