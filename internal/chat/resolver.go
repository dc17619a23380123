package chat

import (
	"context"
	"strings"
	"unicode"
)

const (
	maxIdentifierLen = 64
	roomIDSeparator  = ":"
)

// ValidateIdentifier reports ErrInvalidIdentifier for empty, oversized, or otherwise unusable user ids.
func ValidateIdentifier(id string) error {
	if id == "" || len(id) > maxIdentifierLen {
		return ErrInvalidIdentifier
	}
	if strings.Contains(id, roomIDSeparator) {
		return ErrInvalidIdentifier
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == unicode.ReplacementChar {
			return ErrInvalidIdentifier
		}
	}
	return nil
}

// CanonicalPair orders two identifiers byte-wise so both orderings map to the same pair.
func CanonicalPair(x, y string) (string, string) {
	if y < x {
		return y, x
	}
	return x, y
}

// RoomIDFor derives the room id of the pair without touching storage.
func RoomIDFor(x, y string) (string, error) {
	if err := ValidateIdentifier(x); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(y); err != nil {
		return "", err
	}
	if x == y {
		return "", ErrSelfChat
	}
	a, b := CanonicalPair(x, y)
	return a + roomIDSeparator + b, nil
}

type Resolver struct {
	repo *Repo
}

func NewResolver(repo *Repo) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the room of the pair, creating it on first use.
func (r *Resolver) Resolve(ctx context.Context, x, y string) (*Room, error) {
	roomID, err := RoomIDFor(x, y)
	if err != nil {
		return nil, err
	}
	a, b := CanonicalPair(x, y)

	room, _, err := r.repo.CreateRoomOrGetExisting(ctx, &Room{
		RoomID: roomID,
		UserA:  a,
		UserB:  b,
	})
	if err != nil {
		return nil, persistenceErr("resolve room", err)
	}
	return room, nil
}
