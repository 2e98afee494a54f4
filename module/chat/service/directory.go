package service

import "context"

// UserDirectory resolves display names. It only decorates responses; a
// failure never blocks delivery.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID string) string
}

// StaticDirectory renders "User <id>" for everybody.
type StaticDirectory struct{}

func (StaticDirectory) DisplayName(_ context.Context, userID string) string {
	return "User " + userID
}
