package gateway

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/suPer8Hu/pairchat/internal/chat"
)

const (
	frameMessage  = "message"
	frameAck      = "ack"
	frameError    = "error"
	framePresence = "presence"
	framePing     = "ping"
	framePong     = "pong"
)

type inboundFrame struct {
	Type           string `json:"type"`
	Ref            string `json:"ref,omitempty"`
	RecipientID    string `json:"recipientId"`
	Content        string `json:"content"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type outgoingFrame struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type ackPayload struct {
	Ref             string    `json:"ref,omitempty"`
	MessageID       uint64    `json:"message_id"`
	RoomID          string    `json:"room_id"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"`
	HandlesNotified int       `json:"handles_notified"`
	Duplicate       bool      `json:"duplicate,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

func encodeFrame(typ string, data any) ([]byte, error) {
	return json.Marshal(outgoingFrame{
		Type:      typ,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, chat.ErrInvalidIdentifier):
		return "invalid_identifier"
	case errors.Is(err, chat.ErrSelfChat):
		return "self_chat"
	case errors.Is(err, chat.ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, chat.ErrPersistence):
		return "persistence_failure"
	default:
		return "internal"
	}
}
