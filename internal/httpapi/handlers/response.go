package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/pairchat/internal/chat"
	"github.com/suPer8Hu/pairchat/internal/common"
	"github.com/suPer8Hu/pairchat/internal/httpapi/middleware"
	"go.uber.org/zap"
)

func ok(c *gin.Context, data any) {
	common.OK(c, data)
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	common.Fail(c, httpStatus, code, msg)
}

// failChat maps chat errors onto the response envelope.
func (h *Handler) failChat(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidIdentifier):
		fail(c, http.StatusBadRequest, 40010, "invalid user identifier")
	case errors.Is(err, chat.ErrSelfChat):
		fail(c, http.StatusBadRequest, 40011, "cannot chat with yourself")
	case errors.Is(err, chat.ErrInvalidMessage):
		fail(c, http.StatusBadRequest, 40012, "invalid message")
	case errors.Is(err, chat.ErrPersistence):
		h.Log.Error("persistence failure", zapErr(c, err)...)
		fail(c, http.StatusServiceUnavailable, 50301, "storage unavailable, retry")
	default:
		h.Log.Error("chat error", zapErr(c, err)...)
		fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

func zapErr(c *gin.Context, err error) []zap.Field {
	return []zap.Field{
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.Error(err),
	}
}
