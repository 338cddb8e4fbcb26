// Room HTTP handlers.
//
// This file exposes REST endpoints for room lifecycle and account usage:
//   - POST   /rooms              (create a room)
//   - GET    /rooms              (list room summaries, with weak ETag)
//   - DELETE /rooms/{room}       (delete a room and its history)
//   - POST   /rooms/{room}/clear (reset the in-memory transcript only)
//   - GET    /usage              (per-room and account cost totals)
//   - GET    /models             (the supported model catalog)
//
// Handlers are transport-thin: they validate input, resolve the caller's
// session, delegate to the conversation core, and translate its sentinel
// errors into the stable HTTP error taxonomy.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/seohwan-dev/go-chatroom-backend/internal/chat"
	"github.com/seohwan-dev/go-chatroom-backend/internal/http/middleware"
	"github.com/seohwan-dev/go-chatroom-backend/internal/pricing"
	"github.com/seohwan-dev/go-chatroom-backend/internal/repo"
)

// CreateRoomRequest is the JSON payload for creating a room.
type CreateRoomRequest struct {
	// Name is the room name, unique per user.
	Name string `json:"name" binding:"required,min=1" example:"rust-questions"`
}

// ListRoomsResponse contains the caller's room summaries.
type ListRoomsResponse struct {
	Rooms []chat.RoomSummary `json:"rooms"`
}

// RoomUsage is one room's cost line in the usage report.
type RoomUsage struct {
	Name      string  `json:"name"`
	Exchanges int     `json:"exchanges"`
	TotalCost float64 `json:"total_cost"`
}

// UsageResponse reports the account total and its per-room breakdown.
type UsageResponse struct {
	UserID    string      `json:"user_id"`
	TotalCost float64     `json:"total_cost"`
	Rooms     []RoomUsage `json:"rooms"`
}

// ModelInfo describes one entry of the supported model catalog.
type ModelInfo struct {
	Name            string  `json:"name"`
	Endpoint        string  `json:"endpoint"`
	Tiered          bool    `json:"tiered"`
	FlatPer1K       float64 `json:"flat_per_1k,omitempty"`
	PromptPer1K     float64 `json:"prompt_per_1k,omitempty"`
	CompletionPer1K float64 `json:"completion_per_1k,omitempty"`
}

// RoomHandler bundles the dependencies for room and usage endpoints.
type RoomHandler struct {
	DB       *gorm.DB
	Sessions *chat.Manager
}

// sessionFor resolves the caller's session or writes the matching error
// response. The second return value reports success.
func sessionFor(c *gin.Context, m *chat.Manager) (*chat.Session, bool) {
	uid := middleware.UserIDFrom(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "missing X-User-ID")
		return nil, false
	}
	sess, err := m.Session(uid)
	if err != nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "no active session; log in first")
		return nil, false
	}
	return sess, true
}

// failRoomError translates conversation-core sentinel errors into HTTP
// responses. Returns false when err was nil.
func failRoomError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, chat.ErrInvalidRoomName):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "room name must not be empty")
	case errors.Is(err, chat.ErrDuplicateRoom):
		fail(c, http.StatusConflict, ErrCodeConflict, "room already exists")
	case errors.Is(err, chat.ErrRoomNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
	case errors.Is(err, chat.ErrRequestInFlight):
		fail(c, http.StatusConflict, ErrCodeRequestInFlight, "a request is already in flight for this room")
	case errors.Is(err, chat.ErrPersistenceFailed):
		fail(c, http.StatusInternalServerError, ErrCodePersistenceFailed, "could not persist room state")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
	return true
}

// CreateRoom godoc
// @ID          createRoom
// @Summary     Create a room
// @Description Creates a room for the current user. Names are unique per user.
// @Tags        Rooms
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Param       body       body    handlers.CreateRoomRequest  true  "Create room payload"
// @Success     201  {object}  chat.RoomSummary
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "No active session"
// @Failure     409  {object}  handlers.ErrorResponse  "Room already exists"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /rooms [post]
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	sess, okSess := sessionFor(c, h.Sessions)
	if !okSess {
		return
	}

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}

	summary, err := sess.CreateRoom(c.Request.Context(), req.Name)
	if failRoomError(c, err) {
		return
	}
	ok(c, http.StatusCreated, summary)
}

// ListRooms godoc
// @ID          listRooms
// @Summary     List rooms
// @Description Returns the user's room summaries in creation order. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Rooms
// @Produce     json
// @Param       X-User-ID      header  string  true   "User ID"                     example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"  example(W/\"3-1700000000\")
// @Success     200  {object}  handlers.ListRoomsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     401  {object}  handlers.ErrorResponse  "No active session"
// @Router      /rooms [get]
func (h *RoomHandler) ListRooms(c *gin.Context) {
	sess, okSess := sessionFor(c, h.Sessions)
	if !okSess {
		return
	}

	// Weak ETag from durable stats: room count plus the newest update stamp.
	// In-memory clears do not touch the durable rows, so the tag is stable
	// across them; that is acceptable for a listing of names and totals.
	if count, maxUpd, err := repo.RoomsStats(c.Request.Context(), h.DB, sess.User().ID); err == nil {
		tag := fmt.Sprintf("W/\"%d-0\"", count)
		if maxUpd != nil {
			tag = fmt.Sprintf("W/\"%d-%d\"", count, maxUpd.UTC().UnixNano())
		}
		c.Header("ETag", tag)
		if match := c.GetHeader("If-None-Match"); match != "" && strings.Contains(match, tag) {
			c.Status(http.StatusNotModified)
			return
		}
	}

	ok(c, http.StatusOK, ListRoomsResponse{Rooms: sess.Summaries()})
}

// DeleteRoom godoc
// @ID          deleteRoom
// @Summary     Delete a room
// @Description Removes the room and its durable history. Deleting an absent room returns 404; clients may treat that as already satisfied.
// @Tags        Rooms
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"    example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Param       room       path    string  true  "Room name"  example(rust-questions)
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "No active session"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Request in flight"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /rooms/{room} [delete]
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	sess, okSess := sessionFor(c, h.Sessions)
	if !okSess {
		return
	}
	if failRoomError(c, sess.DeleteRoom(c.Request.Context(), c.Param("room"))) {
		return
	}
	noContent(c)
}

// ClearRoom godoc
// @ID          clearRoom
// @Summary     Clear a room's in-memory transcript
// @Description Resets the room's transcript, exchanges, and running total in memory only. Durable history is kept; the next login restores it.
// @Tags        Rooms
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"    example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Param       room       path    string  true  "Room name"  example(rust-questions)
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "No active session"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Request in flight"
// @Router      /rooms/{room}/clear [post]
func (h *RoomHandler) ClearRoom(c *gin.Context) {
	sess, okSess := sessionFor(c, h.Sessions)
	if !okSess {
		return
	}
	if failRoomError(c, sess.ClearRoom(c.Param("room"))) {
		return
	}
	noContent(c)
}

// Usage godoc
// @ID          usage
// @Summary     Report cost usage
// @Description Returns the account running total and its per-room breakdown.
// @Tags        Usage
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Success     200  {object}  handlers.UsageResponse
// @Failure     401  {object}  handlers.ErrorResponse  "No active session"
// @Router      /usage [get]
func (h *RoomHandler) Usage(c *gin.Context) {
	sess, okSess := sessionFor(c, h.Sessions)
	if !okSess {
		return
	}

	summaries := sess.Summaries()
	rooms := make([]RoomUsage, len(summaries))
	for i, s := range summaries {
		rooms[i] = RoomUsage{Name: s.Name, Exchanges: s.Exchanges, TotalCost: s.TotalCost}
	}
	ok(c, http.StatusOK, UsageResponse{
		UserID:    sess.User().ID,
		TotalCost: sess.UserTotal(),
		Rooms:     rooms,
	})
}

// Models godoc
// @ID          listModels
// @Summary     List supported models
// @Description Returns the closed model catalog with pricing and routing metadata.
// @Tags        Usage
// @Produce     json
// @Success     200  {array}  handlers.ModelInfo
// @Router      /models [get]
func (h *RoomHandler) Models(c *gin.Context) {
	catalog := pricing.Models()
	out := make([]ModelInfo, len(catalog))
	for i, m := range catalog {
		out[i] = ModelInfo{
			Name:            m.Name,
			Endpoint:        m.Endpoint,
			Tiered:          m.Tiered,
			FlatPer1K:       m.FlatPer1K,
			PromptPer1K:     m.PromptPer1K,
			CompletionPer1K: m.CompletionPer1K,
		}
	}
	ok(c, http.StatusOK, out)
}
