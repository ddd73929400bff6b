package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/uikit-demo/session-service/internal/models"
	"github.com/uikit-demo/session-service/internal/sessions"
	"github.com/uikit-demo/session-service/pkg/logger"
	"github.com/uikit-demo/session-service/pkg/middleware"
)

// LoginRequest is the body of POST /api/session/login. The password is
// handed to the configured authenticator and never stored.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password"`
}

// SessionResponse mirrors sessions.State plus the formatted duration.
type SessionResponse struct {
	User            *models.User `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsLoading       bool         `json:"isLoading"`
	SessionDuration string       `json:"sessionDuration,omitempty"`
}

// SessionHandler serves the session routes. It holds no state of its own:
// every request reads the store placed in its context by
// middleware.SessionProvider.
type SessionHandler struct {
	loginMW []gin.HandlerFunc
}

// NewSessionHandler returns a handler; loginMW runs before the login
// endpoint only (rate limiting).
func NewSessionHandler(loginMW ...gin.HandlerFunc) *SessionHandler {
	return &SessionHandler{loginMW: loginMW}
}

// Register routes under /api/session
func (h *SessionHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/api/session")
	s.GET("", h.Get)
	login := append(append([]gin.HandlerFunc{}, h.loginMW...), h.Login)
	s.POST("/login", login...)
	s.POST("/logout", h.Logout)
	s.PATCH("/profile", middleware.RequireSession(), h.UpdateProfile)
}

// Get returns the current session state
func (h *SessionHandler) Get(c *gin.Context) {
	store := sessions.FromContext(c.Request.Context())
	st := store.Snapshot()
	resp := SessionResponse{User: st.User, IsAuthenticated: st.IsAuthenticated, IsLoading: st.IsLoading}
	if d, ok := store.SessionDuration(); ok {
		resp.SessionDuration = d
	}
	c.JSON(http.StatusOK, resp)
}

// Login runs the simulated login and returns the new user
func (h *SessionHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	store := sessions.FromContext(c.Request.Context())
	if err := store.Login(c.Request.Context(), req.Email, req.Password); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Debugf("login aborted: %v", err)
			c.AbortWithStatus(http.StatusRequestTimeout)
			return
		}
		logger.Warnw("login rejected",
			"request_id", middleware.GetRequestID(c.Request.Context()),
			"email", req.Email,
			"error", err,
		)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": store.User()})
}

// Logout clears the session; calling it while logged out is fine
func (h *SessionHandler) Logout(c *gin.Context) {
	sessions.FromContext(c.Request.Context()).Logout(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// UpdateProfile accepts { name?, bio? }
func (h *SessionHandler) UpdateProfile(c *gin.Context) {
	var upd models.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	store := sessions.FromContext(c.Request.Context())
	store.UpdateProfile(c.Request.Context(), upd)
	u := store.User()
	if u == nil {
		// logged out between the middleware check and the update
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}
