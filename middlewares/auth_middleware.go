package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

const (
	identityKey   = "identity"
	GuestIDHeader = "X-Guest-Id"
)

// VerifyToken converts a JWT into an identity. It is also the token verifier
// of the WebSocket hub.
func VerifyToken(token string) (models.Identity, error) {
	claims, err := utils.ParseToken(strings.TrimPrefix(token, "Bearer "))
	if err != nil {
		return models.Identity{}, err
	}
	if !models.ValidRole(claims.Role) {
		return models.Identity{}, errors.New("invalid role in token")
	}
	return models.Identity{UserID: claims.UserID, Role: claims.Role}, nil
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

func setIdentity(c *gin.Context, id models.Identity) {
	c.Set(identityKey, id)
	c.Set("userID", id.UserID)
	c.Set("role", id.Role)
}

// CurrentIdentity returns the identity set by one of the auth middlewares.
func CurrentIdentity(c *gin.Context) models.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(models.Identity); ok {
			return id
		}
	}
	return models.Identity{}
}

// AuthMiddleware mewajibkan JWT yang valid
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			c.Abort()
			return
		}

		id, err := VerifyToken(token)
		if err != nil {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
			c.Abort()
			return
		}
		id.GuestID = strings.TrimSpace(c.GetHeader(GuestIDHeader))

		setIdentity(c, id)
		c.Next()
	}
}

// OptionalAuth menerima JWT atau guest id dari header X-Guest-Id.
// Token yang dikirim tapi tidak valid tetap ditolak.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		guestID := strings.TrimSpace(c.GetHeader(GuestIDHeader))

		if token := bearerToken(c); token != "" {
			id, err := VerifyToken(token)
			if err != nil {
				utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
				c.Abort()
				return
			}
			id.GuestID = guestID
			setIdentity(c, id)
			c.Next()
			return
		}

		if guestID == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("login or X-Guest-Id required"))
			c.Abort()
			return
		}
		setIdentity(c, models.Identity{GuestID: guestID})
		c.Next()
	}
}
