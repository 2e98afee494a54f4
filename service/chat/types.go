package chat

import (
	"time"
)

// CloseSuperseded is the close code sent to a connection replaced by a newer
// one of the same user.
const CloseSuperseded = 4000

// Handle is one live transport endpoint. Write and Close must be safe to call
// from any goroutine.
type Handle interface {
	ID() string
	Write(payload []byte) error
	Close(code int, reason string) error
}

// Connection is the registry entry of a live user.
type Connection struct {
	UserID        string
	Handle        Handle
	EstablishedAt time.Time
}

// Observer is told when a user enters (live=true) or leaves the live state.
type Observer func(userID string, live bool)
