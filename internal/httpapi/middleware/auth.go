package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/pairchat/internal/auth"
	"github.com/suPer8Hu/pairchat/internal/common"
)

const UserIDKey = "user_id"

// AuthRequired accepts "Authorization: Bearer <jwt>", or a token query parameter
// for websocket clients that cannot set headers.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		} else if q := c.Query("token"); q != "" {
			token = q
		}
		if token == "" {
			common.Abort(c, http.StatusUnauthorized, 40100, "missing token")
			return
		}

		userID, err := auth.ParseJWT(token, secret)
		if err != nil {
			common.Abort(c, http.StatusUnauthorized, 40101, "unauthorized")
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}
