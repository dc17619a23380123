package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/pairchat/internal/common"
	"github.com/suPer8Hu/pairchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/pairchat/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(h.Log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(h.Log))

	r.GET("/ping", h.Ping)

	// accounts
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// presence
	authGroup.GET("/users/online", h.OnlineUsers)
	authGroup.GET("/users/:id/status", h.UserStatus)

	// chat (JWT required)
	authGroup.POST("/chat/messages", h.SendChatMessage)
	authGroup.GET("/chat/messages/:peer", h.ListChatMessages)
	authGroup.GET("/chat/rooms", h.ListChatRooms)

	// session gateway
	authGroup.GET("/ws", h.ServeWS)
	return r
}
