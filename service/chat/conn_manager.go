package chat

import (
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Registry maps each user to at most one live connection. The last admitted
// connection wins.
type Registry struct {
	mu       sync.RWMutex
	byUser   map[string]*Connection // userID -> 当前唯一连接
	byHandle map[string]string      // handleID -> userID

	observer Observer
	clock    func() time.Time
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		byUser:   make(map[string]*Connection),
		byHandle: make(map[string]string),
		clock:    time.Now,
		log:      log,
	}
}

// OnChange installs the live/offline observer. Call before the first Admit.
func (r *Registry) OnChange(obs Observer) {
	r.mu.Lock()
	r.observer = obs
	r.mu.Unlock()
}

// Admit makes h the live connection of userID. A previous connection of the
// same user is closed with CloseSuperseded before Admit returns.
func (r *Registry) Admit(userID string, h Handle) *Connection {
	c := &Connection{UserID: userID, Handle: h, EstablishedAt: r.clock()}

	r.mu.Lock()
	old := r.byUser[userID]
	if old != nil && old.Handle.ID() == h.ID() {
		r.mu.Unlock()
		return old
	}
	if old != nil {
		delete(r.byHandle, old.Handle.ID())
	}
	// h rebound from another user: that user loses its connection
	prev, rebound := r.byHandle[h.ID()]
	rebound = rebound && prev != userID
	if rebound {
		if pc := r.byUser[prev]; pc != nil && pc.Handle.ID() == h.ID() {
			delete(r.byUser, prev)
		}
	}
	r.byUser[userID] = c
	r.byHandle[h.ID()] = userID
	obs := r.observer
	r.mu.Unlock()

	if rebound && obs != nil {
		obs(prev, false)
	}

	if old != nil {
		// 单连接语义：旧连接直接踢掉，关闭失败忽略
		if err := old.Handle.Close(CloseSuperseded, "superseded"); err != nil {
			r.log.Debug("close superseded", zap.String("user", userID), zap.Error(err))
		}
		r.log.Info("connection superseded", zap.String("user", userID),
			zap.String("old", old.Handle.ID()), zap.String("new", h.ID()))
		return c
	}
	if obs != nil {
		obs(userID, true)
	}
	r.log.Info("connection admitted", zap.String("user", userID), zap.String("handle", h.ID()))
	return c
}

// Evict removes the mapping owned by h. It is a no-op when h is unknown or
// was superseded. Reports whether a mapping was removed.
func (r *Registry) Evict(h Handle) bool {
	r.mu.Lock()
	userID, ok := r.byHandle[h.ID()]
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byHandle, h.ID())
	if c := r.byUser[userID]; c != nil && c.Handle.ID() == h.ID() {
		delete(r.byUser, userID)
	}
	obs := r.observer
	r.mu.Unlock()

	if obs != nil {
		obs(userID, false)
	}
	r.log.Info("connection evicted", zap.String("user", userID), zap.String("handle", h.ID()))
	return true
}

func (r *Registry) IsLive(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// Get returns the live connection of userID.
func (r *Registry) Get(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// Send pushes payload to userID's live connection. A failed write evicts and
// closes that connection. It never returns an error.
func (r *Registry) Send(userID string, payload []byte) bool {
	c, ok := r.Get(userID)
	if !ok {
		return false
	}
	if err := c.Handle.Write(payload); err != nil {
		r.log.Warn("push failed, evict", zap.String("user", userID),
			zap.String("handle", c.Handle.ID()), zap.Error(err))
		r.Evict(c.Handle)
		_ = c.Handle.Close(websocket.CloseInternalServerErr, "write failed")
		return false
	}
	return true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// Users returns the live user ids, sorted.
func (r *Registry) Users() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// CloseAll closes every live connection; used on shutdown. The read loops
// evict their own handles as they exit.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byUser))
	for _, c := range r.byUser {
		conns = append(conns, c)
	}
	r.mu.RUnlock()
	for _, c := range conns {
		_ = c.Handle.Close(code, reason)
	}
}
