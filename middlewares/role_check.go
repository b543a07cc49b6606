package middlewares

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/restaurant-orders/utils"
)

// RoleCheck hanya meneruskan request dari role yang diizinkan.
// Harus dipasang setelah AuthMiddleware.
func RoleCheck(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		id := CurrentIdentity(c)
		if id.UserID == "" {
			utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}
		if !allowed[id.Role] {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("%s access required", strings.Join(roles, " or ")))
			c.Abort()
			return
		}
		c.Next()
	}
}
