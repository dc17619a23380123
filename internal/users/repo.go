package users

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, u *User) error {
	if u.Status == "" {
		u.Status = StatusOffline
	}
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) GetByNickname(ctx context.Context, nickname string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).
		Where("nickname = ?", nickname).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateStatus records a presence transition. Older events than the stored one are ignored,
// so out-of-order delivery from the queue cannot flip a user back.
func (r *Repo) UpdateStatus(ctx context.Context, nickname string, status Status, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("nickname = ? AND (status_at IS NULL OR status_at <= ?)", nickname, at.UTC()).
		Updates(map[string]any{
			"status":    status,
			"status_at": at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkAllOffline flips every ONLINE user to OFFLINE as of at. A gateway calls it on start,
// since it holds no connections yet and offline events from a previous run may have been lost.
// Later events stamped before at stay ignored by UpdateStatus.
func (r *Repo) MarkAllOffline(ctx context.Context, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&User{}).
		Where("status = ?", StatusOnline).
		Updates(map[string]any{
			"status":    StatusOffline,
			"status_at": at.UTC(),
		})
	return res.RowsAffected, res.Error
}
