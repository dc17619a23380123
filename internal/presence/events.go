package presence

import (
	"context"
	"time"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// StatusChange is emitted when a user goes from zero to one live handle, or back to zero.
type StatusChange struct {
	UserID string    `json:"user_id"`
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// Listener receives status changes from Registry.Run.
type Listener interface {
	OnStatusChange(ctx context.Context, ev StatusChange) error
}

type ListenerFunc func(ctx context.Context, ev StatusChange) error

func (f ListenerFunc) OnStatusChange(ctx context.Context, ev StatusChange) error {
	return f(ctx, ev)
}
