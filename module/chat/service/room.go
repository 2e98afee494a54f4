package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"chatcore/module/chat/message"
	"chatcore/module/chat/model"
	"chatcore/module/chat/room"
	"chatcore/tools/errs"

	"go.uber.org/zap"
)

// RoomService owns room lifecycle on top of a message.Store.
type RoomService struct {
	store message.Store
	dir   UserDirectory
	log   *zap.Logger
}

func NewRoomService(store message.Store, dir UserDirectory, log *zap.Logger) *RoomService {
	if dir == nil {
		dir = StaticDirectory{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RoomService{store: store, dir: dir, log: log}
}

// GetOrCreate returns the room between a and b, creating it on first contact.
// Concurrent first contacts converge on the single row the store accepted.
func (s *RoomService) GetOrCreate(ctx context.Context, a, b string) (*model.Room, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return nil, errs.ErrInvalidArgument.WrapMsg("both user ids are required")
	}
	if a == b {
		return nil, errs.ErrSelfRoom.WrapMsg("", "userId", a)
	}
	id := room.ID(a, b)

	r, err := s.store.GetRoom(ctx, id)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, message.ErrNotFound) {
		return nil, err
	}

	if b < a {
		a, b = b, a
	}
	r = &model.Room{ID: id, ParticipantA: a, ParticipantB: b, CreatedAt: message.Now()}
	err = s.store.CreateRoom(ctx, r)
	switch {
	case err == nil:
		s.log.Debug("room created", zap.String("roomId", id))
		return r, nil
	case errors.Is(err, message.ErrRoomExists):
		// lost the race, read the winner
		return s.store.GetRoom(ctx, id)
	default:
		return nil, err
	}
}

// Get returns the room with id.
func (s *RoomService) Get(ctx context.Context, id string) (*model.Room, error) {
	return s.store.GetRoom(ctx, id)
}

// Member returns the room if userID participates in it.
func (s *RoomService) Member(ctx context.Context, roomID, userID string) (*model.Room, error) {
	r, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !r.Has(userID) {
		return nil, errs.ErrNotParticipant.WrapMsg("", "roomId", roomID, "userId", userID)
	}
	return r, nil
}

// OtherParticipant returns the user on the other side of roomID.
func (s *RoomService) OtherParticipant(ctx context.Context, roomID, userID string) (string, error) {
	r, err := s.Member(ctx, roomID, userID)
	if err != nil {
		return "", err
	}
	other, _ := r.Other(userID)
	return other, nil
}

// Summarize decorates r as seen by userID.
func (s *RoomService) Summarize(ctx context.Context, r *model.Room, userID string) (*model.RoomSummary, error) {
	other, ok := r.Other(userID)
	if !ok {
		return nil, errs.ErrNotParticipant.WrapMsg("", "roomId", r.ID, "userId", userID)
	}
	unread, err := s.store.CountUnread(ctx, r.ID, userID)
	if err != nil {
		return nil, err
	}
	last, err := s.store.Page(ctx, r.ID, 0, 1)
	if err != nil {
		return nil, err
	}
	sum := &model.RoomSummary{
		Room:          r,
		OtherUserID:   other,
		OtherUserName: s.dir.DisplayName(ctx, other),
		UnreadCount:   unread,
	}
	if len(last) > 0 {
		sum.LastMessage = last[0]
	}
	return sum, nil
}

// ListForUser returns userID's rooms, most recently active first.
func (s *RoomService) ListForUser(ctx context.Context, userID string) ([]*model.RoomSummary, error) {
	rooms, err := s.store.ListRooms(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*model.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		sum, err := s.Summarize(ctx, r, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// MarkRead marks every message addressed to userID in roomID as read.
func (s *RoomService) MarkRead(ctx context.Context, roomID, userID string) (*model.Room, int64, error) {
	r, err := s.Member(ctx, roomID, userID)
	if err != nil {
		return nil, 0, err
	}
	n, err := s.store.MarkAllRead(ctx, roomID, userID)
	if err != nil {
		return r, 0, err
	}
	return r, n, nil
}

// Messages returns one page of roomID, newest first.
func (s *RoomService) Messages(ctx context.Context, roomID, userID string, page, size int) ([]*model.Message, error) {
	if page < 0 || size <= 0 {
		return nil, errs.ErrInvalidArgument.WrapMsg("invalid paging", "page", page, "size", size)
	}
	if _, err := s.Member(ctx, roomID, userID); err != nil {
		return nil, err
	}
	// page*size would overflow; nothing lives that far back
	if page > math.MaxInt/size {
		return []*model.Message{}, nil
	}
	return s.store.Page(ctx, roomID, page*size, size)
}

// History returns the whole of roomID, oldest first.
func (s *RoomService) History(ctx context.Context, roomID, userID string) ([]*model.Message, error) {
	if _, err := s.Member(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return s.store.AllOrdered(ctx, roomID)
}

func (s *RoomService) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	return s.store.CountUnreadTotal(ctx, userID)
}

// Delete removes roomID and its messages. Only a participant may delete.
func (s *RoomService) Delete(ctx context.Context, roomID, userID string) error {
	if _, err := s.Member(ctx, roomID, userID); err != nil {
		return err
	}
	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	s.log.Info("room deleted", zap.String("roomId", roomID), zap.String("by", userID))
	return nil
}
