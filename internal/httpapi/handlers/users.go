package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/pairchat/internal/auth"
	"github.com/suPer8Hu/pairchat/internal/chat"
	"github.com/suPer8Hu/pairchat/internal/store/redisstore"
	"github.com/suPer8Hu/pairchat/internal/users"
	"gorm.io/gorm"
)

type createUserReq struct {
	Nickname string `json:"nickname" binding:"required"`
	FullName string `json:"full_name"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	req.Nickname = strings.TrimSpace(req.Nickname)
	if err := chat.ValidateIdentifier(req.Nickname); err != nil {
		fail(c, http.StatusBadRequest, 10002, "invalid nickname")
		return
	}
	if len(req.Password) < 6 || len(req.Password) > 72 {
		fail(c, http.StatusBadRequest, 10003, "password must be 6-72 bytes")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	user := users.User{
		Nickname:     req.Nickname,
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: hash,
	}
	if err := h.Users.Create(c.Request.Context(), &user); err != nil {
		fail(c, http.StatusConflict, 40901, "failed to create user (maybe nickname already exists)")
		return
	}

	token, err := auth.SignJWT(user.Nickname, h.Cfg.JWTSecret, h.Cfg.TokenTTL)
	if err != nil {
		fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	ok(c, gin.H{
		"id":        user.ID,
		"nickname":  user.Nickname,
		"full_name": user.FullName,
		"token":     token,
	})
}

type loginReq struct {
	Nickname string `json:"nickname" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	user, err := h.Users.GetByNickname(c.Request.Context(), strings.TrimSpace(req.Nickname))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusUnauthorized, 40102, "invalid nickname or password")
			return
		}
		fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		fail(c, http.StatusUnauthorized, 40102, "invalid nickname or password")
		return
	}

	token, err := auth.SignJWT(user.Nickname, h.Cfg.JWTSecret, h.Cfg.TokenTTL)
	if err != nil {
		fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}
	ok(c, gin.H{"token": token})
}

func (h *Handler) Me(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	user, err := h.Users.GetByNickname(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40401, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	ok(c, gin.H{
		"id":         user.ID,
		"nickname":   user.Nickname,
		"full_name":  user.FullName,
		"status":     h.ChatSvc.GetStatus(user.Nickname),
		"created_at": user.CreatedAt,
	})
}

func (h *Handler) OnlineUsers(c *gin.Context) {
	ok(c, gin.H{"online_users": h.ChatSvc.OnlineUsers()})
}

// UserStatus answers from the live registry; last_seen_at comes from the snapshot store when available.
func (h *Handler) UserStatus(c *gin.Context) {
	id := c.Param("id")
	if err := chat.ValidateIdentifier(id); err != nil {
		fail(c, http.StatusBadRequest, 40010, "invalid user identifier")
		return
	}

	resp := gin.H{
		"user_id": id,
		"status":  h.ChatSvc.GetStatus(id),
	}

	var lastSeen *time.Time
	if h.Snapshots != nil {
		snap, err := h.Snapshots.GetPresence(c.Request.Context(), id)
		switch {
		case err == nil:
			lastSeen = &snap.At
		case errors.Is(err, redisstore.ErrNotFound):
		default:
			// advisory only
			h.Log.Warn("presence snapshot unavailable", zapErr(c, err)...)
		}
	}
	resp["last_seen_at"] = lastSeen

	ok(c, resp)
}
