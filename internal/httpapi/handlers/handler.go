package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/pairchat/internal/chat"
	"github.com/suPer8Hu/pairchat/internal/config"
	"github.com/suPer8Hu/pairchat/internal/gateway"
	"github.com/suPer8Hu/pairchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/pairchat/internal/store/redisstore"
	"github.com/suPer8Hu/pairchat/internal/users"
	"go.uber.org/zap"
)

// PresenceSnapshots reads the last recorded presence transition of a user.
type PresenceSnapshots interface {
	GetPresence(ctx context.Context, userID string) (redisstore.Snapshot, error)
}

type Handler struct {
	Cfg       config.Config
	Log       *zap.Logger
	Users     *users.Repo
	ChatSvc   *chat.Service
	Gateway   *gateway.Gateway
	Snapshots PresenceSnapshots
}

func NewHandler(cfg config.Config, log *zap.Logger, usersRepo *users.Repo, chatSvc *chat.Service, gw *gateway.Gateway, snaps PresenceSnapshots) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Cfg:       cfg,
		Log:       log,
		Users:     usersRepo,
		ChatSvc:   chatSvc,
		Gateway:   gw,
		Snapshots: snaps,
	}
}

func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func (h *Handler) Ping(c *gin.Context) {
	ok(c, gin.H{"pong": true})
}
