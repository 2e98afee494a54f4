// Package events publishes best-effort domain events for downstream consumers
// (notifications, analytics). Delivery to clients never depends on them.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chatcore/module/chat/model"
	"chatcore/tools/safe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TypeMessageCreated = "message.created"
	TypeRoomRead       = "room.read"
)

// Event is the JSON payload of every record.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	RoomID  string         `json:"roomId"`
	UserID  string         `json:"userId"` // sender for message.created, reader for room.read
	Message *model.Message `json:"message,omitempty"`
	Count   int64          `json:"count,omitempty"`
	At      int64          `json:"at"`
}

// Record is one message handed to a broker. Key selects the partition where
// the broker has them; ID is the broker level dedup id.
type Record struct {
	Topic string
	Key   string
	ID    string
	Value []byte
}

type Publisher interface {
	Publish(ctx context.Context, r Record) error
	Close() error
}

// Noop drops everything.
type Noop struct{}

func (Noop) Publish(context.Context, Record) error { return nil }
func (Noop) Close() error                          { return nil }

const defaultQueue = 1024

// Emitter queues events and publishes them from one goroutine so a slow
// broker never delays a chat handler. A full queue drops the event.
type Emitter struct {
	pub     Publisher
	topic   string
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan Event
	done   chan struct{}
}

func NewEmitter(pub Publisher, topic string, timeout time.Duration, log *zap.Logger) *Emitter {
	if pub == nil {
		pub = Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	e := &Emitter{
		pub:     pub,
		topic:   topic,
		timeout: timeout,
		log:     log,
		ch:      make(chan Event, defaultQueue),
		done:    make(chan struct{}),
	}
	safe.Go(e.log, "events.loop", e.loop)
	return e
}

func (e *Emitter) MessageCreated(m *model.Message) {
	e.emit(Event{Type: TypeMessageCreated, RoomID: m.RoomID, UserID: m.SenderID, Message: m})
}

func (e *Emitter) RoomRead(roomID, readerID string, n int64) {
	e.emit(Event{Type: TypeRoomRead, RoomID: roomID, UserID: readerID, Count: n})
}

func (e *Emitter) emit(ev Event) {
	ev.ID = uuid.NewString()
	ev.At = time.Now().UnixMilli()
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- ev:
	default:
		e.log.Warn("event queue full, drop", zap.String("type", ev.Type), zap.String("roomId", ev.RoomID))
	}
}

func (e *Emitter) loop() {
	defer close(e.done)
	for ev := range e.ch {
		e.publish(ev)
	}
}

func (e *Emitter) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("marshal event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if err := e.pub.Publish(ctx, Record{Topic: e.topic, Key: ev.RoomID, ID: ev.ID, Value: data}); err != nil {
		e.log.Warn("publish event", zap.String("type", ev.Type), zap.String("roomId", ev.RoomID), zap.Error(err))
	}
}

// Close flushes queued events and closes the publisher. Events emitted after
// Close are dropped.
func (e *Emitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return nil
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()
	<-e.done
	return e.pub.Close()
}
