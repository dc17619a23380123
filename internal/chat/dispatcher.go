package chat

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/suPer8Hu/pairchat/internal/presence"
	"go.uber.org/zap"
)

// Notification is what a recipient's live connection receives.
type Notification struct {
	ID          uint64    `json:"id"`
	RoomID      string    `json:"room_id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

func notificationOf(m *Message) Notification {
	return Notification{
		ID:          m.ID,
		RoomID:      m.RoomID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		Timestamp:   m.CreatedAt,
	}
}

// Pusher writes a notification to one live connection.
type Pusher interface {
	Push(ctx context.Context, h presence.Handle, n Notification) error
}

// Presence is the read side of the presence registry the dispatcher needs.
type Presence interface {
	HandlesFor(userID string) []presence.Handle
	Status(userID string) presence.Status
	OnlineUsers() []string
}

type DeliveryStatus string

const (
	Delivered     DeliveryStatus = "delivered"
	StoredOffline DeliveryStatus = "stored_offline"
)

// PushFailure records a soft failure to reach one handle. The message is still stored.
type PushFailure struct {
	Handle presence.Handle `json:"handle"`
	Err    string          `json:"error"`
}

type Outcome struct {
	Message         *Message       `json:"message"`
	Status          DeliveryStatus `json:"status"`
	HandlesNotified int            `json:"handles_notified"`
	Failures        []PushFailure  `json:"failures,omitempty"`
	// Duplicate is set when an idempotency key matched an earlier send; nothing was pushed.
	Duplicate bool `json:"duplicate"`
}

type SendRequest struct {
	SenderID       string
	RecipientID    string
	Content        string
	IdempotencyKey string
}

type DispatcherOptions struct {
	MaxContentLength int
	PushTimeout      time.Duration
}

type Dispatcher struct {
	resolver *Resolver
	store    *Store
	presence Presence
	pusher   Pusher
	log      *zap.Logger

	maxContentLength int
	pushTimeout      time.Duration
}

func NewDispatcher(resolver *Resolver, store *Store, p Presence, pusher Pusher, log *zap.Logger, opts DispatcherOptions) *Dispatcher {
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = 4000
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		resolver:         resolver,
		store:            store,
		presence:         p,
		pusher:           pusher,
		log:              log,
		maxContentLength: opts.MaxContentLength,
		pushTimeout:      opts.PushTimeout,
	}
}

func (d *Dispatcher) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrInvalidMessage
	}
	if !utf8.ValidString(content) || utf8.RuneCountInString(content) > d.maxContentLength {
		return ErrInvalidMessage
	}
	return nil
}

// Send stores the message and then pushes it to every live connection of the recipient.
// Only validation and persistence failures are returned as errors; push failures end up in the outcome.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (*Outcome, error) {
	// 1) validate before any side effect
	if err := d.validateContent(req.Content); err != nil {
		return nil, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > 128 {
		return nil, ErrInvalidMessage
	}

	// 2) resolve room (get-or-create)
	room, err := d.resolver.Resolve(ctx, req.SenderID, req.RecipientID)
	if err != nil {
		return nil, err
	}

	// 3) durability point
	var keyPtr *string
	if key != "" {
		keyPtr = &key
	}
	msg, created, err := d.store.Append(ctx, AppendParams{
		RoomID:         room.RoomID,
		SenderID:       req.SenderID,
		RecipientID:    req.RecipientID,
		Content:        req.Content,
		IdempotencyKey: keyPtr,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return &Outcome{Message: msg, Status: StoredOffline, Duplicate: true}, nil
	}

	// 4) best-effort push
	handles := d.presence.HandlesFor(req.RecipientID)
	if len(handles) == 0 {
		return &Outcome{Message: msg, Status: StoredOffline}, nil
	}

	out := &Outcome{Message: msg, Status: Delivered}
	n := notificationOf(msg)
	for _, h := range handles {
		if err := d.push(ctx, h, n); err != nil {
			out.Failures = append(out.Failures, PushFailure{Handle: h, Err: err.Error()})
			d.log.Warn("push failed",
				zap.Uint64("message_id", msg.ID),
				zap.String("room_id", msg.RoomID),
				zap.String("recipient_id", req.RecipientID),
				zap.String("handle", string(h)),
				zap.Error(err),
			)
			continue
		}
		out.HandlesNotified++
	}
	if out.HandlesNotified == 0 {
		// every handle went away between lookup and push
		out.Status = StoredOffline
	}
	return out, nil
}

func (d *Dispatcher) push(ctx context.Context, h presence.Handle, n Notification) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.pushTimeout)
	defer cancel()
	return d.pusher.Push(pctx, h, n)
}
