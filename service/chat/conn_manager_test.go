package chat

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id string

	mu          sync.Mutex
	writes      [][]byte
	failWrite   bool
	closes      int
	closeCode   int
	closeReason string
}

func newFake(id string) *fakeHandle { return &fakeHandle{id: id} }

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errors.New("broken pipe")
	}
	f.writes = append(f.writes, p)
	return nil
}

func (f *fakeHandle) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.closeCode, f.closeReason = code, reason
	return nil
}

func (f *fakeHandle) envelopes(t *testing.T) []*Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Envelope, 0, len(f.writes))
	for _, w := range f.writes {
		env, err := Decode(w)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

type changes struct {
	mu  sync.Mutex
	got []string
}

func (c *changes) observe(user string, live bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, fmt.Sprintf("%s:%v", user, live))
}

func (c *changes) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.got...)
}

func TestRegistry_AdmitAndEvict(t *testing.T) {
	reg := NewRegistry(nil)
	ch := &changes{}
	reg.OnChange(ch.observe)

	h := newFake("h1")
	c := reg.Admit("alice", h)
	assert.Equal(t, "alice", c.UserID)
	assert.False(t, c.EstablishedAt.IsZero())
	assert.True(t, reg.IsLive("alice"))
	assert.Equal(t, 1, reg.Count())
	assert.Equal(t, []string{"alice"}, reg.Users())

	assert.True(t, reg.Evict(h))
	assert.False(t, reg.IsLive("alice"))
	assert.False(t, reg.Evict(h), "second evict is a no-op")
	assert.Equal(t, []string{"alice:true", "alice:false"}, ch.list())
}

func TestRegistry_AdmitSupersedes(t *testing.T) {
	reg := NewRegistry(nil)
	ch := &changes{}
	reg.OnChange(ch.observe)

	h1, h2 := newFake("h1"), newFake("h2")
	reg.Admit("alice", h1)
	reg.Admit("alice", h2)

	assert.Equal(t, 1, h1.closes)
	assert.Equal(t, CloseSuperseded, h1.closeCode)
	assert.Equal(t, "superseded", h1.closeReason)
	assert.Zero(t, h2.closes)

	// the old read loop exiting must not remove the new connection
	assert.False(t, reg.Evict(h1))
	assert.True(t, reg.IsLive("alice"))

	assert.True(t, reg.Send("alice", []byte(`{"kind":"TYPING"}`)))
	assert.Len(t, h2.writes, 1)
	assert.Empty(t, h1.writes)
	assert.Equal(t, []string{"alice:true"}, ch.list(), "supersession is not an offline transition")
}

func TestRegistry_ReadmitSameHandle(t *testing.T) {
	reg := NewRegistry(nil)
	h := newFake("h1")
	reg.Admit("alice", h)
	reg.Admit("alice", h)
	assert.Zero(t, h.closes)
	assert.True(t, reg.IsLive("alice"))
}

func TestRegistry_HandleReboundToOtherUser(t *testing.T) {
	reg := NewRegistry(nil)
	ch := &changes{}
	reg.OnChange(ch.observe)

	h := newFake("h1")
	reg.Admit("alice", h)
	reg.Admit("bob", h)

	assert.False(t, reg.IsLive("alice"))
	assert.True(t, reg.IsLive("bob"))
	assert.Equal(t, []string{"bob"}, reg.Users())
	assert.False(t, reg.Send("alice", []byte("{}")))
	assert.Zero(t, h.closes)

	assert.True(t, reg.Evict(h))
	assert.Zero(t, reg.Count())
	assert.Equal(t, []string{"alice:true", "alice:false", "bob:true", "bob:false"}, ch.list())
}

func TestRegistry_SendFailureEvicts(t *testing.T) {
	reg := NewRegistry(nil)
	ch := &changes{}
	reg.OnChange(ch.observe)

	h := newFake("h1")
	h.failWrite = true
	reg.Admit("bob", h)

	assert.False(t, reg.Send("bob", []byte("x")))
	assert.False(t, reg.IsLive("bob"))
	assert.Equal(t, 1, h.closes)
	assert.Equal(t, websocket.CloseInternalServerErr, h.closeCode)
	assert.Equal(t, []string{"bob:true", "bob:false"}, ch.list())
}

func TestRegistry_SendToAbsent(t *testing.T) {
	reg := NewRegistry(nil)
	assert.False(t, reg.Send("nobody", []byte("x")))
}

func TestRegistry_ConcurrentAdmitKeepsOne(t *testing.T) {
	reg := NewRegistry(nil)
	const n = 50
	handles := make([]*fakeHandle, n)
	for i := range handles {
		handles[i] = newFake(fmt.Sprintf("h%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(h *fakeHandle) {
			defer wg.Done()
			reg.Admit("alice", h)
		}(handles[i])
		go func() {
			defer wg.Done()
			reg.Send("alice", []byte("ping"))
		}()
	}
	wg.Wait()

	require.Equal(t, 1, reg.Count())
	closed := 0
	for _, h := range handles {
		h.mu.Lock()
		closed += h.closes
		h.mu.Unlock()
	}
	assert.Equal(t, n-1, closed, "every handle but the winner is closed exactly once")

	c, ok := reg.Get("alice")
	require.True(t, ok)
	assert.Zero(t, c.Handle.(*fakeHandle).closes)
}

func TestRegistry_CloseAll(t *testing.T) {
	reg := NewRegistry(nil)
	a, b := newFake("a"), newFake("b")
	reg.Admit("alice", a)
	reg.Admit("bob", b)
	reg.CloseAll(websocket.CloseGoingAway, "shutdown")
	assert.Equal(t, websocket.CloseGoingAway, a.closeCode)
	assert.Equal(t, websocket.CloseGoingAway, b.closeCode)
}
