package users

import (
	"context"
	"fmt"
	"time"

	"github.com/suPer8Hu/pairchat/internal/presence"
	"go.uber.org/zap"
)

// SnapshotWriter keeps a fast-read copy of the latest presence transition.
type SnapshotWriter interface {
	SetPresence(ctx context.Context, userID, status string, at time.Time) error
}

// StatusRecorder persists presence transitions consumed from the event queue.
type StatusRecorder struct {
	repo      *Repo
	snapshots SnapshotWriter
	log       *zap.Logger
}

func NewStatusRecorder(repo *Repo, snapshots SnapshotWriter, log *zap.Logger) *StatusRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusRecorder{repo: repo, snapshots: snapshots, log: log}
}

func (r *StatusRecorder) Record(ctx context.Context, ev presence.StatusChange) error {
	status := StatusOffline
	if ev.Status == presence.StatusOnline {
		status = StatusOnline
	}

	updated, err := r.repo.UpdateStatus(ctx, ev.UserID, status, ev.At)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	if !updated {
		r.log.Debug("status not applied (unknown user or stale event)",
			zap.String("user_id", ev.UserID),
			zap.String("status", string(ev.Status)),
			zap.Time("at", ev.At),
		)
	}

	if r.snapshots != nil {
		if err := r.snapshots.SetPresence(ctx, ev.UserID, string(ev.Status), ev.At); err != nil {
			return fmt.Errorf("set presence snapshot: %w", err)
		}
	}
	return nil
}
