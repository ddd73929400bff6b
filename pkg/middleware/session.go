package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/uikit-demo/session-service/internal/sessions"
)

// SessionProvider puts store into every request context. Handlers reach it
// with sessions.FromContext, which panics when this middleware is missing.
func SessionProvider(store *sessions.Store) gin.HandlerFunc {
	if store == nil {
		panic("middleware: SessionProvider needs a store")
	}
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(sessions.WithStore(c.Request.Context(), store))
		c.Next()
	}
}

// RequireSession aborts with 401 unless somebody is logged in.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sessions.FromContext(c.Request.Context()).IsAuthenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
			return
		}
		c.Next()
	}
}
