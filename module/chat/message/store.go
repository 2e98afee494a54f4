// Package message holds the persistence boundary for rooms and messages.
package message

import (
	"context"
	"errors"
	"time"

	"chatcore/module/chat/model"
	"chatcore/module/chat/room"
	"chatcore/tools/errs"
	"chatcore/tools/ids"

	pkgerrors "github.com/pkg/errors"
)

var (
	ErrNotFound    = errs.ErrNotFound
	ErrUnavailable = errs.ErrStoreUnavailable
	ErrRoomExists  = errors.New("room already exists")
)

// Store is the contract every room/message backend satisfies. Implementations
// are safe for concurrent use and enforce uniqueness of the room id.
type Store interface {
	GetRoom(ctx context.Context, id string) (*model.Room, error)
	// CreateRoom returns ErrRoomExists when a room with the same id is present.
	CreateRoom(ctx context.Context, r *model.Room) error
	// ListRooms orders by LastMessageAt desc. Rooms without messages come last,
	// newest first.
	ListRooms(ctx context.Context, userID string) ([]*model.Room, error)
	// DeleteRoom removes the room and all of its messages.
	DeleteRoom(ctx context.Context, id string) error

	// Append persists m, assigning ID and CreatedAt when empty, and bumps the
	// room's LastMessageAt. The room must exist.
	Append(ctx context.Context, m *model.Message) (*model.Message, error)
	// MarkAllRead flips every unread message addressed to readerID in the room
	// and returns how many changed.
	MarkAllRead(ctx context.Context, roomID, readerID string) (int64, error)
	CountUnread(ctx context.Context, roomID, readerID string) (int64, error)
	CountUnreadTotal(ctx context.Context, userID string) (int64, error)
	// Page returns messages newest first.
	Page(ctx context.Context, roomID string, offset, limit int) ([]*model.Message, error)
	// AllOrdered returns the full history oldest first.
	AllOrdered(ctx context.Context, roomID string) ([]*model.Message, error)
}

// prepare validates m and fills server assigned fields.
func prepare(m *model.Message) (*model.Message, error) {
	if m == nil || m.SenderID == "" || m.ReceiverID == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("sender and receiver are required")
	}
	if m.SenderID == m.ReceiverID {
		return nil, errs.ErrSelfRoom.WrapMsg("", "userId", m.SenderID)
	}
	want := room.ID(m.SenderID, m.ReceiverID)
	if m.RoomID == "" {
		m.RoomID = want
	} else if m.RoomID != want {
		return nil, errs.ErrInvalidArgument.WrapMsg("room does not match participants", "roomId", m.RoomID)
	}
	if m.Kind == "" {
		m.Kind = model.KindText
	}
	if m.ID == "" {
		m.ID = ids.GenerateString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = Now()
	}
	m.IsRead = false
	return m, nil
}

// Now is the store clock. Millisecond precision is what every backend keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func notFound(what, id string) error {
	return ErrNotFound.WrapMsg(what+" not found", "id", id)
}

// classify wraps a backend failure. Context errors pass through so callers
// can tell a timeout from an outage.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(err, op)
	}
	return pkgerrors.Wrap(ErrUnavailable.Wrap(err), op)
}
