package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"chatcore/module/chat/message"
	"chatcore/module/chat/model"
	"chatcore/module/chat/room"
	"chatcore/module/chat/service"
	"chatcore/service/events"
	"chatcore/tools/errs"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// SendRequest is the MESSAGE payload, shared by the socket and REST paths.
type SendRequest struct {
	ReceiverID  string `json:"receiverId" validate:"required"`
	Content     string `json:"content" validate:"required"`
	MessageType string `json:"messageType"`
}

type DispatcherOptions struct {
	StoreTimeout     time.Duration
	MaxContentLength int
}

// handlerFunc handles one inbound envelope from an authenticated user. The
// returned envelope, if any, goes back to the originating connection.
type handlerFunc func(ctx context.Context, from string, env *Envelope) (*Envelope, error)

// Dispatcher routes inbound envelopes by kind.
type Dispatcher struct {
	rooms    *service.RoomService
	store    message.Store
	registry *Registry
	events   *events.Emitter // nil: no events
	validate *validator.Validate
	opts     DispatcherOptions
	log      *zap.Logger

	handlers map[Kind]handlerFunc
}

func NewDispatcher(rooms *service.RoomService, store message.Store, registry *Registry,
	emitter *events.Emitter, opts DispatcherOptions, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = 4000
	}
	d := &Dispatcher{
		rooms:    rooms,
		store:    store,
		registry: registry,
		events:   emitter,
		validate: validator.New(),
		opts:     opts,
		log:      log,
	}
	d.handlers = map[Kind]handlerFunc{
		KindMessage:     d.onMessage,
		KindTyping:      d.onTyping,
		KindReadReceipt: d.onReadReceipt,
		KindConnect:     d.onServerKind,
		KindDisconnect:  d.onServerKind,
	}
	return d
}

// Dispatch runs the handler registered for env.Kind.
func (d *Dispatcher) Dispatch(ctx context.Context, from string, env *Envelope) (*Envelope, error) {
	h, ok := d.handlers[env.Kind]
	if !ok {
		return nil, errs.ErrInvalidArgument.WrapMsg("unknown kind", "kind", env.Kind)
	}
	return h(ctx, from, env)
}

// storeCtx bounds store work. It is detached from the caller so a closing
// connection does not abort a write already in flight.
func (d *Dispatcher) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.opts.StoreTimeout)
}

func (d *Dispatcher) onMessage(ctx context.Context, from string, env *Envelope) (*Envelope, error) {
	m, err := d.Send(ctx, from, SendRequest{
		ReceiverID:  env.ReceiverID,
		Content:     env.Content,
		MessageType: env.MessageType,
	})
	if err != nil {
		return nil, err
	}
	return MessageFrame(m), nil
}

// Send persists a message from `from` and pushes it to the receiver when live.
// The persisted message is returned as the sender's acknowledgement.
func (d *Dispatcher) Send(ctx context.Context, from string, req SendRequest) (*model.Message, error) {
	req.ReceiverID = strings.TrimSpace(req.ReceiverID)
	if strings.TrimSpace(req.Content) == "" {
		req.Content = "" // 纯空白视为空
	}
	if from == "" {
		return nil, errs.ErrUnauthenticated.WrapMsg("sender unknown")
	}
	if err := d.validate.Struct(req); err != nil {
		return nil, errs.ErrInvalidArgument.WrapMsg(err.Error())
	}
	if req.ReceiverID == from {
		return nil, errs.ErrSelfRoom.WrapMsg("", "userId", from)
	}
	if n := utf8.RuneCountInString(req.Content); n > d.opts.MaxContentLength {
		return nil, errs.ErrInvalidArgument.WrapMsg("content too long", "len", n, "max", d.opts.MaxContentLength)
	}
	kind, ok := model.ParseKind(req.MessageType)
	if !ok {
		return nil, errs.ErrInvalidArgument.WrapMsg("unknown messageType", "messageType", req.MessageType)
	}

	sctx, cancel := d.storeCtx(ctx)
	defer cancel()

	r, err := d.rooms.GetOrCreate(sctx, from, req.ReceiverID)
	if err != nil {
		return nil, err
	}
	m, err := d.store.Append(sctx, &model.Message{
		RoomID:     r.ID,
		SenderID:   from,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Kind:       kind,
	})
	if err != nil {
		d.log.Error("append message", zap.String("roomId", r.ID), zap.String("from", from), zap.Error(err))
		return nil, err
	}

	delivered := d.registry.Send(m.ReceiverID, MessageFrame(m).Encode())
	d.log.Debug("message stored", zap.String("id", m.ID), zap.String("roomId", m.RoomID),
		zap.Bool("delivered", delivered))
	if d.events != nil {
		d.events.MessageCreated(m)
	}
	return m, nil
}

// 输入状态只转发，不落库；对方不在线直接丢弃
func (d *Dispatcher) onTyping(_ context.Context, from string, env *Envelope) (*Envelope, error) {
	to := strings.TrimSpace(env.ReceiverID)
	if to == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("receiverId required")
	}
	if to == from {
		return nil, nil
	}
	d.registry.Send(to, TypingFrame(room.ID(from, to), from, to).Encode())
	return nil, nil
}

func (d *Dispatcher) onReadReceipt(ctx context.Context, from string, env *Envelope) (*Envelope, error) {
	roomID := strings.TrimSpace(env.RoomID)
	if roomID == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("roomId required")
	}
	_, err := d.ReadReceipt(ctx, from, roomID)
	return nil, err
}

// ReadReceipt marks roomID read for reader and tells the other participant.
// An unknown room, or one the store cannot load, is ignored.
func (d *Dispatcher) ReadReceipt(ctx context.Context, reader, roomID string) (int64, error) {
	sctx, cancel := d.storeCtx(ctx)
	defer cancel()

	other, err := d.rooms.OtherParticipant(sctx, roomID, reader)
	if errors.Is(err, errs.ErrNotParticipant) {
		return 0, err
	}
	if err != nil {
		d.log.Debug("read receipt for unknown room", zap.String("roomId", roomID), zap.Error(err))
		return 0, nil
	}
	n, err := d.store.MarkAllRead(sctx, roomID, reader)
	if err != nil {
		d.log.Warn("mark read", zap.String("roomId", roomID), zap.String("reader", reader), zap.Error(err))
		return 0, err
	}
	d.registry.Send(other, ReadReceiptFrame(roomID, reader).Encode())
	if d.events != nil {
		d.events.RoomRead(roomID, reader, n)
	}
	return n, nil
}

// CONNECT/DISCONNECT 只由服务端下发
func (d *Dispatcher) onServerKind(_ context.Context, from string, env *Envelope) (*Envelope, error) {
	d.log.Debug("ignore server kind from client", zap.String("user", from), zap.String("kind", string(env.Kind)))
	return nil, nil
}
