package chat

import (
	"context"
	"time"
)

type AppendParams struct {
	RoomID         string
	SenderID       string
	RecipientID    string
	Content        string
	IdempotencyKey *string
}

// Store appends and reads messages. Timestamps come from the store, never from the sender.
type Store struct {
	repo *Repo
	now  func() time.Time
}

func NewStore(repo *Repo) *Store {
	return &Store{repo: repo, now: time.Now}
}

// Append durably writes one message into an existing room. The timestamp is taken under the
// room lock and never precedes an earlier message of the room. created is false when the
// idempotency key matched an earlier message, which is returned unchanged.
func (s *Store) Append(ctx context.Context, p AppendParams) (*Message, bool, error) {
	m := &Message{
		RoomID:         p.RoomID,
		SenderID:       p.SenderID,
		RecipientID:    p.RecipientID,
		Content:        p.Content,
		IdempotencyKey: p.IdempotencyKey,
	}
	out, created, err := s.repo.AppendMessage(ctx, m, s.now)
	if err != nil {
		return nil, false, persistenceErr("append message", err)
	}
	out.CreatedAt = out.CreatedAt.UTC()
	return out, created, nil
}

// History returns every message of the room ordered by (timestamp, id).
func (s *Store) History(ctx context.Context, roomID string) ([]Message, error) {
	msgs, err := s.repo.ListMessagesAsc(ctx, roomID, nil, 0)
	if err != nil {
		return nil, persistenceErr("history", err)
	}
	return msgs, nil
}

// HistoryPage returns up to limit messages after the cursor. next is nil on the last page.
func (s *Store) HistoryPage(ctx context.Context, roomID string, after *Cursor, limit int) ([]Message, *Cursor, error) {
	if limit <= 0 {
		limit = 50
	}
	// one extra row tells us whether another page exists
	msgs, err := s.repo.ListMessagesAsc(ctx, roomID, after, limit+1)
	if err != nil {
		return nil, nil, persistenceErr("history page", err)
	}
	if len(msgs) <= limit {
		return msgs, nil, nil
	}
	msgs = msgs[:limit]
	last := msgs[len(msgs)-1]
	return msgs, &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, nil
}
