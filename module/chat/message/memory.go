package message

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"chatcore/module/chat/model"

	"github.com/samber/lo"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*model.Room
	msgs  map[string][]*model.Message // roomID -> messages, append order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[string]*model.Room),
		msgs:  make(map[string][]*model.Message),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, notFound("room", id)
	}
	return cloneRoom(r), nil
}

func (s *MemoryStore) CreateRoom(ctx context.Context, r *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; ok {
		return ErrRoomExists
	}
	s.rooms[r.ID] = cloneRoom(r)
	return nil
}

func (s *MemoryStore) ListRooms(ctx context.Context, userID string) ([]*model.Room, error) {
	s.mu.RLock()
	out := make([]*model.Room, 0)
	for _, r := range s.rooms {
		if r.Has(userID) {
			out = append(out, cloneRoom(r))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, compareRooms)
	return out, nil
}

func (s *MemoryStore) DeleteRoom(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return notFound("room", id)
	}
	delete(s.rooms, id)
	delete(s.msgs, id)
	return nil
}

func (s *MemoryStore) Append(ctx context.Context, m *model.Message) (*model.Message, error) {
	m, err := prepare(m)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[m.RoomID]
	if !ok {
		return nil, notFound("room", m.RoomID)
	}
	if r.LastMessageAt == nil || m.CreatedAt.After(*r.LastMessageAt) {
		at := m.CreatedAt
		r.LastMessageAt = &at
	}
	stored := *m
	s.msgs[m.RoomID] = append(s.msgs[m.RoomID], &stored)
	return m, nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context, roomID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.msgs[roomID] {
		if m.ReceiverID == readerID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, roomID, readerID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countUnread(s.msgs[roomID], readerID), nil
}

func (s *MemoryStore) CountUnreadTotal(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, list := range s.msgs {
		n += countUnread(list, userID)
	}
	return n, nil
}

func (s *MemoryStore) Page(ctx context.Context, roomID string, offset, limit int) ([]*model.Message, error) {
	all := s.ordered(roomID)
	slices.Reverse(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) || limit <= 0 {
		return []*model.Message{}, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (s *MemoryStore) AllOrdered(ctx context.Context, roomID string) ([]*model.Message, error) {
	return s.ordered(roomID), nil
}

func (s *MemoryStore) ordered(roomID string) []*model.Message {
	s.mu.RLock()
	out := lo.Map(s.msgs[roomID], func(m *model.Message, _ int) *model.Message {
		c := *m
		return &c
	})
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b *model.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func countUnread(list []*model.Message, readerID string) int64 {
	return int64(lo.CountBy(list, func(m *model.Message) bool {
		return m.ReceiverID == readerID && !m.IsRead
	}))
}

func compareRooms(a, b *model.Room) int {
	switch {
	case a.LastMessageAt != nil && b.LastMessageAt == nil:
		return -1
	case a.LastMessageAt == nil && b.LastMessageAt != nil:
		return 1
	case a.LastMessageAt != nil && b.LastMessageAt != nil:
		if c := b.LastMessageAt.Compare(*a.LastMessageAt); c != 0 {
			return c
		}
	}
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func cloneRoom(r *model.Room) *model.Room {
	c := *r
	if r.LastMessageAt != nil {
		at := *r.LastMessageAt
		c.LastMessageAt = &at
	}
	return &c
}
