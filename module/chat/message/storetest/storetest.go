// Package storetest is the behavioural suite every message.Store must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatcore/module/chat/message"
	"chatcore/module/chat/model"
	"chatcore/module/chat/room"
	"chatcore/tools/errs"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty (or at least isolated) store for one test.
type Factory func(t *testing.T) message.Store

// Run executes the suite. User ids are random so backends shared between
// runs do not interfere.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s message.Store)
	}{
		{"CreateAndGetRoom", testCreateAndGetRoom},
		{"CreateRoomIsUnique", testCreateRoomIsUnique},
		{"ConcurrentCreateHasOneWinner", testConcurrentCreate},
		{"GetMissingRoom", testGetMissingRoom},
		{"AppendAssignsIDAndBumpsRoom", testAppend},
		{"AppendRejectsInvalid", testAppendRejectsInvalid},
		{"PageAndHistoryOrder", testPageAndHistory},
		{"MarkAllReadIsIdempotent", testMarkAllRead},
		{"UnreadTotalsAcrossRooms", testUnreadTotal},
		{"ListRoomsOrder", testListRooms},
		{"DeleteRoomCascades", testDeleteRoom},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func user(t *testing.T, name string) string {
	t.Helper()
	return name + "-" + uuid.NewString()[:8]
}

func newRoom(a, b string, createdAt time.Time) *model.Room {
	if b < a {
		a, b = b, a
	}
	return &model.Room{ID: room.ID(a, b), ParticipantA: a, ParticipantB: b, CreatedAt: createdAt}
}

func mustCreate(t *testing.T, s message.Store, a, b string, createdAt time.Time) *model.Room {
	t.Helper()
	r := newRoom(a, b, createdAt)
	require.NoError(t, s.CreateRoom(context.Background(), r))
	return r
}

func send(t *testing.T, s message.Store, from, to, content string) *model.Message {
	t.Helper()
	m, err := s.Append(context.Background(), &model.Message{SenderID: from, ReceiverID: to, Content: content})
	require.NoError(t, err)
	return m
}

func testCreateAndGetRoom(t *testing.T, s message.Store) {
	ctx := context.Background()
	alice, bob := user(t, "alice"), user(t, "bob")
	r := mustCreate(t, s, alice, bob, message.Now())

	got, err := s.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.ParticipantA, got.ParticipantA)
	assert.Equal(t, r.ParticipantB, got.ParticipantB)
	assert.True(t, r.CreatedAt.Equal(got.CreatedAt))
	assert.Nil(t, got.LastMessageAt)
}

func testCreateRoomIsUnique(t *testing.T, s message.Store) {
	alice, bob := user(t, "alice"), user(t, "bob")
	mustCreate(t, s, alice, bob, message.Now())

	err := s.CreateRoom(context.Background(), newRoom(bob, alice, message.Now()))
	assert.ErrorIs(t, err, message.ErrRoomExists)
}

func testConcurrentCreate(t *testing.T, s message.Store) {
	alice, bob := user(t, "alice"), user(t, "bob")
	const n = 8

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		exists int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateRoom(context.Background(), newRoom(alice, bob, message.Now()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, message.ErrRoomExists):
				exists++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, exists)
}

func testGetMissingRoom(t *testing.T, s message.Store) {
	_, err := s.GetRoom(context.Background(), room.ID(user(t, "x"), user(t, "y")))
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func testAppend(t *testing.T, s message.Store) {
	ctx := context.Background()
	alice, bob := user(t, "alice"), user(t, "bob")
	r := mustCreate(t, s, alice, bob, message.Now())

	m := send(t, s, alice, bob, "hi")
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, r.ID, m.RoomID)
	assert.Equal(t, model.KindText, m.Kind)
	assert.False(t, m.IsRead)
	assert.False(t, m.CreatedAt.IsZero())

	got, err := s.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(m.CreatedAt))

	_, err = s.Append(ctx, &model.Message{SenderID: user(t, "x"), ReceiverID: user(t, "y"), Content: "no room"})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func testAppendRejectsInvalid(t *testing.T, s message.Store) {
	ctx := context.Background()
	alice, bob := user(t, "alice"), user(t, "bob")
	mustCreate(t, s, alice, bob, message.Now())

	_, err := s.Append(ctx, &model.Message{SenderID: alice, ReceiverID: alice, Content: "me"})
	assert.ErrorIs(t, err, errs.ErrSelfRoom)

	_, err = s.Append(ctx, &model.Message{RoomID: "wrong_room", SenderID: alice, ReceiverID: bob, Content: "x"})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func testPageAndHistory(t *testing.T, s message.Store) {
	ctx := context.Background()
	alice, bob := user(t, "alice"), user(t, "bob")
	r := mustCreate(t, s, alice, bob, message.Now())

	var sent []*model.Message
	for _, c := range []string{"m1", "m2", "m3", "m4", "m5"} {
		sent = append(sent, send(t, s, alice, bob, c))
	}

	all, err := s.AllOrdered(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, m := range all {
		assert.Equal(t, sent[i].ID, m.ID)
		assert.Equal(t, sent[i].Content, m.Content)
	}

	page, err := s.Page(ctx, r.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m5", page[0].Content)
	assert.Equal(t, "m4", page[1].Content)

	page, err = s.Page(ctx, r.ID, 4, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "m1", page[0].Content)

	page, err = s.Page(ctx, r.ID, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func testMarkAllRead(t *testing.T, s message.Store) {
	ctx := context.Background()
	alice, bob := user(t, "alice"), user(t, "bob")
	r := mustCreate(t, s, alice, bob, message.Now())

	send(t, s, alice, bob, "1")
	send(t, s, alice, bob, "2")
	send(t, s, bob, alice, "3")

	n, err := s.CountUnread(ctx, r.ID, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.MarkAllRead(ctx, r.ID, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.MarkAllRead(ctx, r.ID, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "second call changes nothing")

	n, err = s.CountUnread(ctx, r.ID, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	n, err = s.CountUnread(ctx, r.ID, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "the other direction is untouched")
}

func testUnreadTotal(t *testing.T, s message.Store) {
	ctx := context.Background()
	alice, bob, carol := user(t, "alice"), user(t, "bob"), user(t, "carol")
	mustCreate(t, s, alice, bob, message.Now())
	mustCreate(t, s, alice, carol, message.Now())

	send(t, s, bob, alice, "b1")
	send(t, s, bob, alice, "b2")
	send(t, s, carol, alice, "c1")
	send(t, s, alice, carol, "a1")

	n, err := s.CountUnreadTotal(ctx, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = s.CountUnreadTotal(ctx, carol)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func testListRooms(t *testing.T, s message.Store) {
	ctx := context.Background()
	alice := user(t, "alice")
	bob, carol, dave, erin := user(t, "bob"), user(t, "carol"), user(t, "dave"), user(t, "erin")
	base := message.Now().Add(-time.Hour)

	rBob := mustCreate(t, s, alice, bob, base)
	rCarol := mustCreate(t, s, alice, carol, base.Add(time.Second))
	rDave := mustCreate(t, s, alice, dave, base.Add(2*time.Second))
	rErin := mustCreate(t, s, alice, erin, base.Add(3*time.Second))

	at := func(d time.Duration) time.Time { return base.Add(10*time.Minute + d) }
	_, err := s.Append(ctx, &model.Message{SenderID: bob, ReceiverID: alice, Content: "x", CreatedAt: at(2 * time.Second)})
	require.NoError(t, err)
	_, err = s.Append(ctx, &model.Message{SenderID: carol, ReceiverID: alice, Content: "y", CreatedAt: at(time.Second)})
	require.NoError(t, err)

	rooms, err := s.ListRooms(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rooms, 4)
	assert.Equal(t, rBob.ID, rooms[0].ID, "most recent message first")
	assert.Equal(t, rCarol.ID, rooms[1].ID)
	assert.Equal(t, rErin.ID, rooms[2].ID, "never-messaged rooms last, newest first")
	assert.Equal(t, rDave.ID, rooms[3].ID)

	rooms, err = s.ListRooms(ctx, bob)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, rBob.ID, rooms[0].ID)
}

func testDeleteRoom(t *testing.T, s message.Store) {
	ctx := context.Background()
	alice, bob := user(t, "alice"), user(t, "bob")
	r := mustCreate(t, s, alice, bob, message.Now())
	send(t, s, alice, bob, "1")
	send(t, s, alice, bob, "2")

	require.NoError(t, s.DeleteRoom(ctx, r.ID))

	_, err := s.GetRoom(ctx, r.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	all, err := s.AllOrdered(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, all)

	n, err := s.CountUnreadTotal(ctx, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	assert.ErrorIs(t, s.DeleteRoom(ctx, r.ID), errs.ErrNotFound)

	// the id can be reused after a delete
	mustCreate(t, s, alice, bob, message.Now())
}
