// Message HTTP handlers.
//
// This file exposes REST endpoints for the exchange cycle:
//   - POST /rooms/{room}/messages   (submit a prompt, get the priced exchange)
//   - GET  /rooms/{room}/messages   (list the room's durable exchanges, paginated)
//   - GET  /rooms/{room}/transcript (the room's live in-memory transcript)
//
// Idempotency:
// When the client supplies an Idempotency-Key header and a previous
// successful submit exists for (user, room, key), the handler returns the
// recorded exchange and sets `Idempotency-Replayed: true` instead of calling
// the completion backend again.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/seohwan-dev/go-chatroom-backend/internal/chat"
	"github.com/seohwan-dev/go-chatroom-backend/internal/domain"
	"github.com/seohwan-dev/go-chatroom-backend/internal/http/middleware"
	"github.com/seohwan-dev/go-chatroom-backend/internal/pricing"
	"github.com/seohwan-dev/go-chatroom-backend/internal/repo"
	"github.com/seohwan-dev/go-chatroom-backend/internal/utils"
)

// SubmitMessageRequest is the JSON payload for one user turn. Model,
// temperature, and max_tokens fall back to server defaults when omitted.
type SubmitMessageRequest struct {
	// Message is the user prompt. It must be non-empty.
	Message string `json:"message" binding:"required,min=1" example:"How do borrow checkers work?"`
	// Model selects a catalog entry, e.g. "gpt-4".
	Model       string   `json:"model,omitempty" example:"gpt-3.5-turbo"`
	Temperature *float64 `json:"temperature,omitempty" example:"0.2"`
	MaxTokens   *int     `json:"max_tokens,omitempty" example:"256"`
}

// SubmitMessageResponse wraps the completed exchange with the updated totals.
type SubmitMessageResponse struct {
	Exchange  chat.Exchange `json:"exchange"`
	RoomTotal float64       `json:"room_total"`
	UserTotal float64       `json:"user_total"`
}

// Pagination describes the page window of a listing response.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ListMessagesResponse contains a page of durable exchanges.
type ListMessagesResponse struct {
	Exchanges  []chat.Exchange `json:"exchanges"`
	Pagination Pagination      `json:"pagination"`
}

// TranscriptResponse is the room's live transcript in role order.
type TranscriptResponse struct {
	Room    string       `json:"room"`
	Entries []chat.Entry `json:"entries"`
}

// MessageHandler bundles the dependencies for the exchange endpoints.
type MessageHandler struct {
	DB             *gorm.DB
	Sessions       *chat.Manager
	Controller     *chat.Controller
	IdempotencyTTL time.Duration
}

// clampPagination parses page/page_size query parameters with defaults and caps.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// exchangeFromRow converts a durable exchange row to the API shape.
func exchangeFromRow(room string, row domain.Exchange) chat.Exchange {
	return chat.Exchange{
		ID:               row.ID,
		Room:             room,
		UserMessage:      row.UserMessage,
		AssistantMessage: row.AssistantMessage,
		ModelName:        row.ModelName,
		TotalTokens:      row.TotalTokens,
		PromptTokens:     row.PromptTokens,
		CompletionTokens: row.CompletionTokens,
		Cost:             row.Cost,
		CreatedAt:        row.CreatedAt,
	}
}

// Submit godoc
// @ID          submitMessage
// @Summary     Send a message and get the priced exchange
// @Description Runs one exchange cycle: stages the prompt, calls the completion backend, prices the usage, and records the result durably before updating totals.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  true   "User ID"           example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Param       Idempotency-Key  header  string  false  "Safe-retry key"    example(retry-7f3a)
// @Param       room             path    string  true   "Room name"         example(rust-questions)
// @Param       body             body    handlers.SubmitMessageRequest  true  "Submit payload"
// @Success     201  {object}  handlers.SubmitMessageResponse
// @Header      201  {string}  Idempotency-Replayed  "true when served from a stored result"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "No active session"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Request in flight"
// @Failure     422  {object}  handlers.ErrorResponse  "Unknown model"
// @Failure     502  {object}  handlers.ErrorResponse  "Completion backend failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Persistence failed"
// @Router      /rooms/{room}/messages [post]
func (h *MessageHandler) Submit(c *gin.Context) {
	sess, okSess := sessionFor(c, h.Sessions)
	if !okSess {
		return
	}
	room := c.Param("room")

	if middleware.IsReplay(c) {
		if h.serveReplay(c, sess, room) {
			return
		}
		// Lookup raced with TTL expiry; fall through to a fresh submit.
	}

	var req SubmitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message is required")
		return
	}

	ex, err := h.Controller.Submit(c.Request.Context(), sess.User().ID, chat.SubmitInput{
		Room:        room,
		Prompt:      req.Message,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if h.failSubmitError(c, err) {
		return
	}

	if key, present := middleware.GetIdempotencyKey(c); present {
		_, err := repo.CreateIdempotency(c.Request.Context(), h.DB,
			sess.User().ID, room, key, ex.ID, http.StatusCreated, h.IdempotencyTTL)
		if err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}

	h.respondExchange(c, sess, room, ex)
}

// serveReplay answers a detected idempotent replay from the stored exchange.
// Returns false when the stored record has vanished and a fresh submit should
// run instead.
func (h *MessageHandler) serveReplay(c *gin.Context, sess *chat.Session, room string) bool {
	key, present := middleware.GetIdempotencyKey(c)
	if !present {
		return false
	}
	rec, err := repo.GetIdempotency(c.Request.Context(), h.DB,
		sess.User().ID, room, key, time.Now().UTC())
	if err != nil {
		return false
	}
	row, err := repo.GetExchange(c.Request.Context(), h.DB, rec.ExchangeID)
	if err != nil {
		return false
	}

	c.Header("Idempotency-Replayed", "true")
	h.respondExchange(c, sess, room, exchangeFromRow(room, *row))
	return true
}

// respondExchange writes the 201 envelope with current totals.
func (h *MessageHandler) respondExchange(c *gin.Context, sess *chat.Session, room string, ex chat.Exchange) {
	resp := SubmitMessageResponse{Exchange: ex, UserTotal: sess.UserTotal()}
	if summary, err := sess.Summary(room); err == nil {
		resp.RoomTotal = summary.TotalCost
	}
	ok(c, http.StatusCreated, resp)
}

// failSubmitError translates submit errors into HTTP responses. Returns false
// when err was nil.
func (h *MessageHandler) failSubmitError(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, chat.ErrEmptyMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message must not be empty")
	case errors.Is(err, chat.ErrMessageTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message exceeds the maximum length")
	case errors.Is(err, chat.ErrInvalidTemperature):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "temperature must be between 0 and 2")
	case errors.Is(err, chat.ErrInvalidMaxTokens):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "max_tokens must be positive")
	case errors.Is(err, pricing.ErrUnknownModel):
		fail(c, http.StatusUnprocessableEntity, ErrCodeUnknownModel, "model is not in the supported catalog")
	case errors.Is(err, chat.ErrRoomNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "room not found")
	case errors.Is(err, chat.ErrRequestInFlight):
		fail(c, http.StatusConflict, ErrCodeRequestInFlight, "a request is already in flight for this room")
	case errors.Is(err, chat.ErrNoSession):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "no active session; log in first")
	case errors.Is(err, chat.ErrCompletionFailed):
		fail(c, http.StatusBadGateway, ErrCodeCompletionFailed, "completion backend request failed")
	case errors.Is(err, chat.ErrPersistenceFailed):
		fail(c, http.StatusInternalServerError, ErrCodePersistenceFailed, "could not persist the exchange")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
	return true
}

// List godoc
// @ID          listMessages
// @Summary     List a room's durable exchanges (paginated)
// @Description Returns the room's recorded exchanges from storage in arrival order.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true   "User ID"         example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Param       room       path    string  true   "Room name"       example(rust-questions)
// @Param       page       query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     401  {object}  handlers.ErrorResponse  "No active session"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /rooms/{room}/messages [get]
func (h *MessageHandler) List(c *gin.Context) {
	sess, okSess := sessionFor(c, h.Sessions)
	if !okSess {
		return
	}
	room := c.Param("room")

	summary, err := sess.Summary(room)
	if failRoomError(c, err) {
		return
	}

	page, pageSize := clampPagination(c)
	ctx := c.Request.Context()

	total, err := repo.CountExchanges(ctx, h.DB, summary.RoomID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not count messages")
		return
	}
	rows, err := repo.ListExchangesPage(ctx, h.DB, summary.RoomID, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list messages")
		return
	}

	exchanges := make([]chat.Exchange, len(rows))
	for i, row := range rows {
		exchanges[i] = exchangeFromRow(room, row)
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Exchanges: exchanges,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: totalPages,
		},
	})
}

// Transcript godoc
// @ID          roomTranscript
// @Summary     Get a room's live transcript
// @Description Returns the in-memory transcript entries in role order. After a clear this is empty even though durable history remains.
// @Tags        Messages
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"    example(141add05-4415-4938-b5a1-17e0d3171aff)
// @Param       room       path    string  true  "Room name"  example(rust-questions)
// @Success     200  {object}  handlers.TranscriptResponse
// @Failure     401  {object}  handlers.ErrorResponse  "No active session"
// @Failure     404  {object}  handlers.ErrorResponse  "Room not found"
// @Router      /rooms/{room}/transcript [get]
func (h *MessageHandler) Transcript(c *gin.Context) {
	sess, okSess := sessionFor(c, h.Sessions)
	if !okSess {
		return
	}
	room := c.Param("room")

	entries, err := sess.Transcript(room)
	if failRoomError(c, err) {
		return
	}
	if entries == nil {
		entries = []chat.Entry{}
	}
	ok(c, http.StatusOK, TranscriptResponse{Room: room, Entries: entries})
}
