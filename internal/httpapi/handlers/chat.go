package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/pairchat/internal/chat"
)

type sendMessageReq struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}

	out, err := h.ChatSvc.HandleInboundFrame(c.Request.Context(), uid, req.RecipientID, req.Content, idempoKey)
	if err != nil {
		h.failChat(c, err)
		return
	}

	ok(c, gin.H{
		"message":          out.Message,
		"status":           out.Status,
		"handles_notified": out.HandlesNotified,
		"duplicate":        out.Duplicate,
	})
}

// ListChatMessages pages through the conversation with :peer, oldest first.
// The cursor is (after_ts in unix ms, after_id); both or neither must be given.
func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	peer := c.Param("peer")

	limit, _ := strconv.Atoi(c.Query("limit"))

	var after *chat.Cursor
	tsStr, idStr := c.Query("after_ts"), c.Query("after_id")
	if tsStr != "" || idStr != "" {
		ts, err1 := strconv.ParseInt(tsStr, 10, 64)
		id, err2 := strconv.ParseUint(idStr, 10, 64)
		if err1 != nil || err2 != nil {
			fail(c, http.StatusBadRequest, 10004, "invalid cursor")
			return
		}
		after = &chat.Cursor{CreatedAt: time.UnixMilli(ts).UTC(), ID: id}
	}

	msgs, next, err := h.ChatSvc.GetHistoryPage(c.Request.Context(), uid, peer, after, limit)
	if err != nil {
		h.failChat(c, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}

	resp := gin.H{
		"messages": msgs,
		"next":     nil,
	}
	if next != nil {
		resp["next"] = gin.H{
			"after_ts": next.CreatedAt.UnixMilli(),
			"after_id": next.ID,
		}
	}
	ok(c, resp)
}

func (h *Handler) ListChatRooms(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	rooms, err := h.ChatSvc.Rooms(c.Request.Context(), uid)
	if err != nil {
		h.failChat(c, err)
		return
	}
	ok(c, gin.H{"rooms": rooms})
}

// ServeWS hands the authenticated request to the session gateway.
func (h *Handler) ServeWS(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	h.Gateway.ServeWS(c.Writer, c.Request, uid, h.ChatSvc)
}
