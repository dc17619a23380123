package chat

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/pairchat/internal/presence"
	"gorm.io/gorm"
)

// Service is the boundary the gateway and the HTTP API talk to.
type Service struct {
	repo       *Repo
	resolver   *Resolver
	store      *Store
	dispatcher *Dispatcher
	presence   Presence
	pageSize   int
}

func NewService(repo *Repo, dispatcher *Dispatcher, pageSize int) *Service {
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 50
	}
	return &Service{
		repo:       repo,
		resolver:   dispatcher.resolver,
		store:      dispatcher.store,
		dispatcher: dispatcher,
		presence:   dispatcher.presence,
		pageSize:   pageSize,
	}
}

// HandleInboundFrame is called by the gateway for every chat frame a connection sends.
func (s *Service) HandleInboundFrame(ctx context.Context, senderID, recipientID, content, idempotencyKey string) (*Outcome, error) {
	return s.dispatcher.Send(ctx, SendRequest{
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        content,
		IdempotencyKey: idempotencyKey,
	})
}

// GetHistory returns the whole conversation of the pair. Reading never creates a room.
func (s *Service) GetHistory(ctx context.Context, userA, userB string) ([]Message, error) {
	roomID, err := RoomIDFor(userA, userB)
	if err != nil {
		return nil, err
	}
	return s.store.History(ctx, roomID)
}

// GetHistoryPage is the paginated form of GetHistory. limit <= 0 uses the configured page size.
func (s *Service) GetHistoryPage(ctx context.Context, userA, userB string, after *Cursor, limit int) ([]Message, *Cursor, error) {
	roomID, err := RoomIDFor(userA, userB)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	return s.store.HistoryPage(ctx, roomID, after, limit)
}

func (s *Service) GetStatus(userID string) presence.Status {
	return s.presence.Status(userID)
}

func (s *Service) OnlineUsers() []string {
	return s.presence.OnlineUsers()
}

type RoomSummary struct {
	RoomID        string     `json:"room_id"`
	Peer          string     `json:"peer"`
	PeerStatus    string     `json:"peer_status"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// Rooms lists the conversations the user takes part in.
func (s *Service) Rooms(ctx context.Context, userID string) ([]RoomSummary, error) {
	if err := ValidateIdentifier(userID); err != nil {
		return nil, err
	}
	rooms, err := s.repo.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, persistenceErr("list rooms", err)
	}

	out := make([]RoomSummary, 0, len(rooms))
	for i := range rooms {
		room := &rooms[i]
		peer := room.Peer(userID)
		sum := RoomSummary{
			RoomID:     room.RoomID,
			Peer:       peer,
			PeerStatus: string(s.presence.Status(peer)),
			CreatedAt:  room.CreatedAt.UTC(),
		}
		last, err := s.repo.LatestMessageAt(ctx, room.RoomID)
		switch {
		case err == nil:
			sum.LastMessageAt = &last
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return nil, persistenceErr("latest message", err)
		}
		out = append(out, sum)
	}
	return out, nil
}
