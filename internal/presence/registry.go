// Package presence tracks which users hold live connections.
//
// The registry is split into shards keyed by a hash of the user id; each shard
// has its own lock, so connects and disconnects of unrelated users never contend
// on a single mutex. Nothing in here performs I/O. Status transitions are queued
// on a buffered channel and fanned out to listeners by Run.
package presence

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Handle identifies one live connection. The gateway mints them.
type Handle string

var ErrInvalidEntry = errors.New("presence: user id and handle are required")

type shard struct {
	mu    sync.RWMutex
	users map[string]map[Handle]struct{}
}

type Registry struct {
	shards []*shard
	mask   uint64

	events  chan StatusChange
	dropped atomic.Uint64

	lmu       sync.RWMutex
	listeners []Listener

	log *zap.Logger
	now func() time.Time
}

type Options struct {
	Shards      int
	EventBuffer int
}

const defaultShards = 32

// NewRegistry rounds the shard count up to a power of two. Zero means 32 shards.
func NewRegistry(opts Options, log *zap.Logger) *Registry {
	if opts.Shards <= 0 {
		opts.Shards = defaultShards
	}
	n := 1
	for n < opts.Shards {
		n <<= 1
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 1024
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &Registry{
		shards: make([]*shard, n),
		mask:   uint64(n - 1),
		events: make(chan StatusChange, opts.EventBuffer),
		log:    log,
		now:    time.Now,
	}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[Handle]struct{})}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	return r.shards[xxhash.Sum64String(userID)&r.mask]
}

// Subscribe adds a listener. Listeners only see events dispatched after they subscribe.
func (r *Registry) Subscribe(l Listener) {
	r.lmu.Lock()
	defer r.lmu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Connect registers a live handle. Registering the same handle twice is a no-op.
func (r *Registry) Connect(userID string, h Handle) error {
	if userID == "" || h == "" {
		return ErrInvalidEntry
	}
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, ok := s.users[userID]
	if !ok {
		handles = make(map[Handle]struct{}, 1)
		s.users[userID] = handles
	}
	if _, dup := handles[h]; dup {
		return nil
	}
	handles[h] = struct{}{}
	if len(handles) == 1 {
		// enqueued under the shard lock so events of one user stay ordered; the send never blocks
		r.emit(StatusChange{UserID: userID, Status: StatusOnline, At: r.now().UTC()})
	}
	return nil
}

// Disconnect removes exactly that handle. The user goes offline when none remain.
func (r *Registry) Disconnect(userID string, h Handle) error {
	if userID == "" || h == "" {
		return ErrInvalidEntry
	}
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	handles, ok := s.users[userID]
	if !ok {
		return nil
	}
	if _, ok := handles[h]; !ok {
		return nil
	}
	delete(handles, h)
	if len(handles) == 0 {
		delete(s.users, userID)
		r.emit(StatusChange{UserID: userID, Status: StatusOffline, At: r.now().UTC()})
	}
	return nil
}

func (r *Registry) IsOnline(userID string) bool {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID]) > 0
}

func (r *Registry) Status(userID string) Status {
	if r.IsOnline(userID) {
		return StatusOnline
	}
	return StatusOffline
}

// HandlesFor returns a sorted copy of the user's handles, possibly empty.
func (r *Registry) HandlesFor(userID string) []Handle {
	s := r.shardFor(userID)
	s.mu.RLock()
	out := lo.Keys(s.users[userID])
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}

// OnlineUsers lists every online user, sorted.
func (r *Registry) OnlineUsers() []string {
	var out []string
	for _, s := range r.shards {
		s.mu.RLock()
		out = append(out, lo.Keys(s.users)...)
		s.mu.RUnlock()
	}
	slices.Sort(out)
	return out
}

// Dropped counts status changes discarded because the event buffer was full.
func (r *Registry) Dropped() uint64 {
	return r.dropped.Load()
}

func (r *Registry) emit(ev StatusChange) {
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Run delivers queued status changes to listeners until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			r.dispatch(ctx, ev)
		}
	}
}

func (r *Registry) dispatch(ctx context.Context, ev StatusChange) {
	r.lmu.RLock()
	listeners := slices.Clone(r.listeners)
	r.lmu.RUnlock()

	for _, l := range listeners {
		if err := l.OnStatusChange(ctx, ev); err != nil {
			r.log.Warn("presence listener failed",
				zap.String("user_id", ev.UserID),
				zap.String("status", string(ev.Status)),
				zap.Error(err),
			)
		}
	}
}
