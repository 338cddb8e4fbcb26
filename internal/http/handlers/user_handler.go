// Session lifecycle HTTP handlers.
//
// This file exposes the login/logout endpoints:
//   - POST /login   (upsert the user by name and hydrate an in-memory session)
//   - POST /logout  (discard the in-memory session; durable state is kept)
//
// Login is idempotent: repeating it for the same name returns the same user
// and the already-active session when one exists.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/seohwan-dev/go-chatroom-backend/internal/chat"
	"github.com/seohwan-dev/go-chatroom-backend/internal/http/middleware"
	"github.com/seohwan-dev/go-chatroom-backend/internal/repo"
)

// LoginRequest is the JSON payload for starting a session.
type LoginRequest struct {
	// Name identifies the user; created on first login.
	Name string `json:"name" binding:"required,min=1" example:"alice"`
}

// LoginResponse returns the user identity and the hydrated room summaries.
type LoginResponse struct {
	UserID    string             `json:"user_id"`
	Name      string             `json:"name"`
	TotalCost float64            `json:"total_cost"`
	Rooms     []chat.RoomSummary `json:"rooms"`
}

// SessionHandler bundles the dependencies for login/logout.
type SessionHandler struct {
	DB       *gorm.DB
	Sessions *chat.Manager
}

// Login godoc
// @ID          login
// @Summary     Start (or resume) a session
// @Description Upserts the user by name, rebuilds room state from storage, and returns the identity for the X-User-ID header.
// @Tags        Session
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.LoginRequest  true  "Login payload"
// @Success     200  {object}  handlers.LoginResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /login [post]
func (h *SessionHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}

	user, err := repo.UpsertUser(c.Request.Context(), h.DB, strings.TrimSpace(req.Name))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not create user")
		return
	}

	sess, err := h.Sessions.Init(c.Request.Context(), *user)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not hydrate session")
		return
	}

	ok(c, http.StatusOK, LoginResponse{
		UserID:    user.ID,
		Name:      user.Name,
		TotalCost: sess.UserTotal(),
		Rooms:     sess.Summaries(),
	})
}

// Logout godoc
// @ID          logout
// @Summary     End the current session
// @Description Discards the in-memory session. Durable rooms and totals are untouched; the next login rebuilds them.
// @Tags        Session
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing identity"
// @Router      /logout [post]
func (h *SessionHandler) Logout(c *gin.Context) {
	uid := middleware.UserIDFrom(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing X-User-ID")
		return
	}
	h.Sessions.Teardown(uid)
	noContent(c)
}
