package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/restaurant-orders/models"
)

// WebSocketAuthMiddleware: token opsional lewat ?token=, guest boleh
// terhubung tanpa token. Token yang tidak valid ditolak.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = bearerToken(c)
		}

		id := models.Identity{GuestID: strings.TrimSpace(c.Query("guestId"))}
		if token != "" {
			verified, err := VerifyToken(token)
			if err != nil {
				c.AbortWithStatus(http.StatusUnauthorized)
				return
			}
			verified.GuestID = id.GuestID
			id = verified
		}

		setIdentity(c, id)
		c.Next()
	}
}
