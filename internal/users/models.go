package users

import "time"

type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// User is an account. Nickname doubles as the chat user identifier.
type User struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Nickname     string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"nickname"`
	FullName     string     `gorm:"type:varchar(128)" json:"full_name"`
	PasswordHash string     `gorm:"type:varchar(100);not null" json:"-"`
	Status       Status     `gorm:"type:varchar(16);index;not null;default:OFFLINE" json:"status"`
	StatusAt     *time.Time `json:"status_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "users" }
