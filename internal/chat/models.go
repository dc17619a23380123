package chat

import "time"

// Room is the single conversation between two users. UserA < UserB.
type Room struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID    string    `gorm:"type:varchar(160);uniqueIndex;not null" json:"room_id"`
	UserA     string    `gorm:"type:varchar(64);not null;index:uniq_chat_room_pair,unique,priority:1" json:"user_a"`
	UserB     string    `gorm:"type:varchar(64);not null;index:uniq_chat_room_pair,unique,priority:2;index" json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}

func (Room) TableName() string { return "chat_rooms" }

// Peer returns the other participant of the room.
func (r *Room) Peer(userID string) string {
	if r.UserA == userID {
		return r.UserB
	}
	return r.UserA
}

type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement;index:idx_chat_msg_room_ts_id,priority:3" json:"id"`
	RoomID         string    `gorm:"type:varchar(160);not null;index:idx_chat_msg_room_ts_id,priority:1;index:uniq_chat_msg_idempo,unique,priority:1" json:"room_id"`
	SenderID       string    `gorm:"type:varchar(64);not null;index:uniq_chat_msg_idempo,unique,priority:2" json:"sender_id"`
	RecipientID    string    `gorm:"type:varchar(64);not null" json:"recipient_id"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	IdempotencyKey *string   `gorm:"type:varchar(128);index:uniq_chat_msg_idempo,unique,priority:3" json:"-"`
	CreatedAt      time.Time `gorm:"not null;index:idx_chat_msg_room_ts_id,priority:2" json:"timestamp"`
}

func (Message) TableName() string { return "chat_messages" }

// Cursor points at a message in (timestamp, id) order. Pages start strictly after it.
type Cursor struct {
	CreatedAt time.Time `json:"timestamp"`
	ID        uint64    `json:"id"`
}

// Models lists everything the chat package persists, for migrations.
func Models() []any {
	return []any{&Room{}, &Message{}}
}
