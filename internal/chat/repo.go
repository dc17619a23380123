package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetRoomByRoomID(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// CreateRoomOrGetExisting inserts the room, and if the unique pair constraint rejects it,
// returns the row that won instead. created reports whether this call inserted it.
func (r *Repo) CreateRoomOrGetExisting(ctx context.Context, room *Room) (*Room, bool, error) {
	existing, err := r.GetRoomByRoomID(ctx, room.RoomID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	createErr := r.db.WithContext(ctx).Create(room).Error
	if createErr == nil {
		return room, true, nil
	}

	existing, getErr := r.GetRoomByRoomID(ctx, room.RoomID)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, createErr
	}
	return nil, false, getErr
}

// ListRoomsForUser returns the rooms the user takes part in, oldest first.
func (r *Repo) ListRoomsForUser(ctx context.Context, userID string) ([]Room, error) {
	var rooms []Room
	if err := r.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Order("created_at ASC, id ASC").
		Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

func getMessageByIdempotencyKey(tx *gorm.DB, roomID, senderID, key string) (*Message, error) {
	var m Message
	if err := tx.
		Where("room_id = ? AND sender_id = ? AND idempotency_key = ?", roomID, senderID, key).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// lockRoom takes a row lock on the room for the rest of tx. SQLite has no row locks;
// its single writer already serializes the transaction.
func lockRoom(tx *gorm.DB, roomID string) error {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var room Room
	return q.Where("room_id = ?", roomID).First(&room).Error
}

// AppendMessage inserts m into its room. Appends to one room are serialized on the room row,
// and created_at is max(now(), latest created_at in the room), so (created_at, id) order is
// commit order even across processes with skewed clocks.
// When m carries an idempotency key already used by the same sender in the room,
// the existing message is returned and created is false.
func (r *Repo) AppendMessage(ctx context.Context, m *Message, now func() time.Time) (*Message, bool, error) {
	if m.IdempotencyKey != nil && *m.IdempotencyKey == "" {
		m.IdempotencyKey = nil
	}

	var out *Message
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockRoom(tx, m.RoomID); err != nil {
			return fmt.Errorf("lock room %s: %w", m.RoomID, err)
		}

		if m.IdempotencyKey != nil {
			existing, err := getMessageByIdempotencyKey(tx, m.RoomID, m.SenderID, *m.IdempotencyKey)
			if err == nil {
				out = existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		ts := now().UTC().Truncate(time.Millisecond)
		var latest Message
		err := tx.Where("room_id = ?", m.RoomID).
			Order("created_at DESC, id DESC").
			Limit(1).
			Find(&latest).Error
		if err != nil {
			return err
		}
		if latest.ID != 0 && ts.Before(latest.CreatedAt.UTC()) {
			ts = latest.CreatedAt.UTC()
		}
		m.CreatedAt = ts

		if err := tx.Create(m).Error; err != nil {
			return err
		}
		out, created = m, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// ListMessagesAsc returns messages in ASC (created_at, id) order, strictly after the cursor when one is given.
// limit <= 0 means no limit.
func (r *Repo) ListMessagesAsc(ctx context.Context, roomID string, after *Cursor, limit int) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC")

	if after != nil {
		ts := after.CreatedAt.UTC()
		q = q.Where("(created_at > ? OR (created_at = ? AND id > ?))", ts, ts, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].CreatedAt = msgs[i].CreatedAt.UTC()
	}
	return msgs, nil
}

func (r *Repo) LatestMessageAt(ctx context.Context, roomID string) (time.Time, error) {
	var m Message
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		return time.Time{}, err
	}
	return m.CreatedAt.UTC(), nil
}
