package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rs/zerolog"

	"github.com/seohwan-dev/go-chatroom-backend/internal/chat"
	"github.com/seohwan-dev/go-chatroom-backend/internal/completion"
	"github.com/seohwan-dev/go-chatroom-backend/internal/domain"
	"github.com/seohwan-dev/go-chatroom-backend/internal/http/middleware"
	"github.com/seohwan-dev/go-chatroom-backend/internal/repo"
)

// ---------- test DB + gateway shim ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.User{}, &domain.Room{}, &domain.Exchange{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// testGateway mirrors the router's shim over the repo free functions.
type testGateway struct{ db *gorm.DB }

func (g testGateway) UpsertRoom(ctx context.Context, userID, name string) (*domain.Room, error) {
	return repo.UpsertRoom(ctx, g.db, userID, name)
}

func (g testGateway) DeleteRoom(ctx context.Context, userID, name string) error {
	err := repo.DeleteRoomCascade(ctx, g.db, userID, name)
	if err == repo.ErrNotFound {
		return chat.ErrRoomNotFound
	}
	return err
}

func (g testGateway) AppendExchange(ctx context.Context, ex *domain.Exchange) error {
	return repo.AppendExchange(ctx, g.db, ex)
}

func (g testGateway) ListRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	return repo.ListRooms(ctx, g.db, userID)
}

func (g testGateway) ListExchanges(ctx context.Context, roomID string) ([]domain.Exchange, error) {
	return repo.ListExchanges(ctx, g.db, roomID, 0)
}

// stubCompleter answers every call with a fixed usage profile.
type stubCompleter struct {
	calls int
	err   error
}

func (s *stubCompleter) Complete(ctx context.Context, endpoint string, req completion.Request) (*completion.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &completion.Response{
		Message:          "stub reply",
		TotalTokens:      1000,
		PromptTokens:     400,
		CompletionTokens: 600,
	}, nil
}

// ---------- engine setup ----------

type stack struct {
	engine    *gin.Engine
	db        *gorm.DB
	sessions  *chat.Manager
	completer *stubCompleter
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	sessions := chat.NewManager(testGateway{db: db}, zerolog.Nop())
	completer := &stubCompleter{}
	ctrl := &chat.Controller{
		Sessions:           sessions,
		Client:             completer,
		Timeout:            time.Second,
		MaxPromptRunes:     4000,
		DefaultModel:       "gpt-3.5-turbo",
		DefaultTemperature: 0.2,
		DefaultMaxTokens:   256,
	}

	sessionH := &SessionHandler{DB: db, Sessions: sessions}
	roomH := &RoomHandler{DB: db, Sessions: sessions}
	msgH := &MessageHandler{DB: db, Sessions: sessions, Controller: ctrl, IdempotencyTTL: time.Hour}

	r := gin.New()
	r.Use(middleware.Identity())
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{},
		func(ctx context.Context, userID, room, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, room, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))
	r.POST("/login", sessionH.Login)
	r.POST("/logout", sessionH.Logout)
	r.POST("/rooms", roomH.CreateRoom)
	r.GET("/rooms", roomH.ListRooms)
	r.DELETE("/rooms/:room", roomH.DeleteRoom)
	r.POST("/rooms/:room/clear", roomH.ClearRoom)
	r.POST("/rooms/:room/messages", msgH.Submit)
	r.GET("/rooms/:room/messages", msgH.List)
	r.GET("/rooms/:room/transcript", msgH.Transcript)
	r.GET("/usage", roomH.Usage)
	r.GET("/models", roomH.Models)

	return &stack{engine: r, db: db, sessions: sessions, completer: completer}
}

func (s *stack) do(t *testing.T, method, path, userID string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *stack) login(t *testing.T, name string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/login", "", gin.H{"name": name}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	var resp LoginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.UserID
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return e
}

// ---------- tests ----------

func TestLoginIsIdempotentByName(t *testing.T) {
	s := newStack(t)

	id1 := s.login(t, "alice")
	id2 := s.login(t, "alice")
	if id1 != id2 {
		t.Fatalf("repeated login returned different IDs: %q vs %q", id1, id2)
	}

	w := s.do(t, http.MethodPost, "/login", "", gin.H{"name": "  "}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank name: %d", w.Code)
	}
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	s := newStack(t)
	uid := s.login(t, "alice")

	// No session -> 401.
	if w := s.do(t, http.MethodPost, "/rooms", "stranger", gin.H{"name": "x"}, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no session: %d", w.Code)
	}

	w := s.do(t, http.MethodPost, "/rooms", uid, gin.H{"name": "general"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/rooms", uid, gin.H{"name": "general"}, nil)
	if w.Code != http.StatusConflict || decodeErr(t, w).Code != ErrCodeConflict {
		t.Fatalf("duplicate: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/rooms", uid, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var listResp ListRoomsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &listResp)
	if len(listResp.Rooms) != 1 || listResp.Rooms[0].Name != "general" {
		t.Fatalf("rooms: %+v", listResp.Rooms)
	}
	if w.Header().Get("ETag") == "" {
		t.Fatalf("missing ETag on room listing")
	}

	if w := s.do(t, http.MethodDelete, "/rooms/general", uid, nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/rooms/general", uid, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", w.Code)
	}
}

func TestSubmitAndUsageOverHTTP(t *testing.T) {
	s := newStack(t)
	uid := s.login(t, "alice")
	s.do(t, http.MethodPost, "/rooms", uid, gin.H{"name": "general"}, nil)

	w := s.do(t, http.MethodPost, "/rooms/general/messages", uid, gin.H{"message": "hello"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var resp SubmitMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode submit: %v", err)
	}
	if resp.Exchange.AssistantMessage != "stub reply" {
		t.Fatalf("exchange: %+v", resp.Exchange)
	}
	// 1000 tokens at the flat rate.
	if diff := resp.Exchange.Cost - 0.002; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("cost = %v", resp.Exchange.Cost)
	}
	if resp.UserTotal != resp.Exchange.Cost || resp.RoomTotal != resp.Exchange.Cost {
		t.Fatalf("totals: %+v", resp)
	}

	// Transcript shows both entries.
	w = s.do(t, http.MethodGet, "/rooms/general/transcript", uid, nil, nil)
	var tr TranscriptResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tr)
	if len(tr.Entries) != 2 || tr.Entries[0].Role != "user" || tr.Entries[1].Role != "assistant" {
		t.Fatalf("transcript: %+v", tr.Entries)
	}

	// Usage reports the same totals.
	w = s.do(t, http.MethodGet, "/usage", uid, nil, nil)
	var usage UsageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &usage)
	if usage.UserID != uid || len(usage.Rooms) != 1 {
		t.Fatalf("usage: %+v", usage)
	}
	if diff := usage.TotalCost - 0.002; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("usage total = %v", usage.TotalCost)
	}

	// Unknown model fails closed without touching state.
	w = s.do(t, http.MethodPost, "/rooms/general/messages", uid, gin.H{"message": "hi", "model": "llama"}, nil)
	if w.Code != http.StatusUnprocessableEntity || decodeErr(t, w).Code != ErrCodeUnknownModel {
		t.Fatalf("unknown model: %d %s", w.Code, w.Body.String())
	}
}

func TestSubmitCompletionFailureMapsTo502(t *testing.T) {
	s := newStack(t)
	uid := s.login(t, "alice")
	s.do(t, http.MethodPost, "/rooms", uid, gin.H{"name": "general"}, nil)

	s.completer.err = fmt.Errorf("backend down")
	w := s.do(t, http.MethodPost, "/rooms/general/messages", uid, gin.H{"message": "hi"}, nil)
	if w.Code != http.StatusBadGateway || decodeErr(t, w).Code != ErrCodeCompletionFailed {
		t.Fatalf("completion failure: %d %s", w.Code, w.Body.String())
	}

	// Transcript untouched by the failure.
	w = s.do(t, http.MethodGet, "/rooms/general/transcript", uid, nil, nil)
	var tr TranscriptResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tr)
	if len(tr.Entries) != 0 {
		t.Fatalf("transcript after failure: %+v", tr.Entries)
	}
}

func TestClearRoomOverHTTP(t *testing.T) {
	s := newStack(t)
	uid := s.login(t, "alice")
	s.do(t, http.MethodPost, "/rooms", uid, gin.H{"name": "general"}, nil)
	s.do(t, http.MethodPost, "/rooms/general/messages", uid, gin.H{"message": "hello"}, nil)

	if w := s.do(t, http.MethodPost, "/rooms/general/clear", uid, nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("clear: %d", w.Code)
	}

	// Live transcript is empty, but the durable listing still has the exchange.
	w := s.do(t, http.MethodGet, "/rooms/general/transcript", uid, nil, nil)
	var tr TranscriptResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tr)
	if len(tr.Entries) != 0 {
		t.Fatalf("transcript after clear: %+v", tr.Entries)
	}

	w = s.do(t, http.MethodGet, "/rooms/general/messages", uid, nil, nil)
	var list ListMessagesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Pagination.TotalItems != 1 || len(list.Exchanges) != 1 {
		t.Fatalf("durable messages after clear: %+v", list)
	}
}

func TestListMessagesPagination(t *testing.T) {
	s := newStack(t)
	uid := s.login(t, "alice")
	s.do(t, http.MethodPost, "/rooms", uid, gin.H{"name": "general"}, nil)

	for i := 0; i < 5; i++ {
		msg := fmt.Sprintf("prompt %d", i)
		if w := s.do(t, http.MethodPost, "/rooms/general/messages", uid, gin.H{"message": msg}, nil); w.Code != http.StatusCreated {
			t.Fatalf("submit %d: %d", i, w.Code)
		}
	}

	w := s.do(t, http.MethodGet, "/rooms/general/messages?page=2&page_size=2", uid, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var list ListMessagesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Pagination.TotalItems != 5 || list.Pagination.TotalPages != 3 {
		t.Fatalf("pagination: %+v", list.Pagination)
	}
	if len(list.Exchanges) != 2 || list.Exchanges[0].UserMessage != "prompt 2" {
		t.Fatalf("page content: %+v", list.Exchanges)
	}
}

func TestIdempotentReplayServesStoredExchange(t *testing.T) {
	s := newStack(t)
	uid := s.login(t, "alice")
	s.do(t, http.MethodPost, "/rooms", uid, gin.H{"name": "general"}, nil)

	hdr := map[string]string{"Idempotency-Key": "retry-1"}
	w := s.do(t, http.MethodPost, "/rooms/general/messages", uid, gin.H{"message": "hello"}, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("first submit: %d %s", w.Code, w.Body.String())
	}
	var first SubmitMessageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &first)

	w = s.do(t, http.MethodPost, "/rooms/general/messages", uid, gin.H{"message": "hello"}, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("replay: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
	var second SubmitMessageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &second)
	if second.Exchange.ID != first.Exchange.ID {
		t.Fatalf("replay returned a new exchange: %q vs %q", second.Exchange.ID, first.Exchange.ID)
	}

	// The completion backend ran exactly once; no double billing.
	if s.completer.calls != 1 {
		t.Fatalf("completer calls = %d; want 1", s.completer.calls)
	}
	var usage UsageResponse
	w = s.do(t, http.MethodGet, "/usage", uid, nil, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &usage)
	if diff := usage.TotalCost - 0.002; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("usage after replay = %v; want 0.002", usage.TotalCost)
	}
}

func TestModelsEndpoint(t *testing.T) {
	s := newStack(t)

	w := s.do(t, http.MethodGet, "/models", "", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("models: %d", w.Code)
	}
	var models []ModelInfo
	if err := json.Unmarshal(w.Body.Bytes(), &models); err != nil {
		t.Fatalf("decode models: %v", err)
	}
	if len(models) < 3 {
		t.Fatalf("catalog: %+v", models)
	}
	for _, m := range models {
		if m.Name == "" || m.Endpoint == "" {
			t.Fatalf("incomplete entry: %+v", m)
		}
	}
}

func TestLogoutDiscardsSession(t *testing.T) {
	s := newStack(t)
	uid := s.login(t, "alice")
	s.do(t, http.MethodPost, "/rooms", uid, gin.H{"name": "general"}, nil)

	if w := s.do(t, http.MethodPost, "/logout", uid, nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout: %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/rooms", uid, nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("rooms after logout: %d", w.Code)
	}

	// Logging back in restores the durable room.
	if got := s.login(t, "alice"); got != uid {
		t.Fatalf("relogin changed identity")
	}
	w := s.do(t, http.MethodGet, "/rooms", uid, nil, nil)
	var list ListRoomsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Rooms) != 1 || list.Rooms[0].Name != "general" {
		t.Fatalf("rooms after relogin: %+v", list.Rooms)
	}
}
