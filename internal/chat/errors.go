package chat

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidIdentifier = errors.New("invalid user identifier")
	ErrSelfChat          = errors.New("cannot open a conversation with yourself")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrPersistence       = errors.New("persistence failure")
)

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
