package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// userIDKey is the Gin context key holding the caller identity.
	userIDKey = "userID"
	// userIDHeader carries the identity issued at login.
	userIDHeader = "X-User-ID"
)

// Identity stashes the caller identity from the X-User-ID header into the Gin
// context. It does not reject unauthenticated requests; handlers that need an
// identity enforce that themselves so login and health stay reachable.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(userIDHeader)); id != "" {
			c.Set(userIDKey, id)
		}
		c.Next()
	}
}

// UserIDFrom returns the identity set by Identity, or "" when absent.
func UserIDFrom(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
