// Package chat implements the conversation-state and cost-accounting core:
// per-room transcripts, per-exchange token/cost metrics, and running totals
// kept consistent with the persistence gateway across room creation,
// deletion, and reload.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/seohwan-dev/go-chatroom-backend/internal/domain"
	"github.com/seohwan-dev/go-chatroom-backend/internal/pricing"
)

// Gateway is the narrow persistence contract the core consumes. The concrete
// implementation lives in the repo package and is adapted at wiring time.
type Gateway interface {
	// UpsertRoom returns the durable room record for (owner, name), creating
	// it when absent.
	UpsertRoom(ctx context.Context, userID, name string) (*domain.Room, error)
	// DeleteRoom removes the room and cascade-deletes its exchanges.
	DeleteRoom(ctx context.Context, userID, name string) error
	// AppendExchange durably appends an exchange and bumps the room and user
	// running totals in one transaction.
	AppendExchange(ctx context.Context, ex *domain.Exchange) error
	// ListRooms returns the owner's rooms in creation order.
	ListRooms(ctx context.Context, userID string) ([]domain.Room, error)
	// ListExchanges returns a room's exchanges in arrival order.
	ListExchanges(ctx context.Context, roomID string) ([]domain.Exchange, error)
}

// Exchange is one completed user/assistant turn pair with its token usage and
// cost. Immutable once recorded.
type Exchange struct {
	ID               string    `json:"id"`
	Room             string    `json:"room"`
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	ModelName        string    `json:"model_name"`
	TotalTokens      int       `json:"total_tokens"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	Cost             float64   `json:"cost"`
	CreatedAt        time.Time `json:"created_at"`
}

// RoomSummary is the read-only view of a room's accumulated state.
type RoomSummary struct {
	Name      string    `json:"name"`
	RoomID    string    `json:"room_id"`
	Exchanges int       `json:"exchanges"`
	TotalCost float64   `json:"total_cost"`
	CreatedAt time.Time `json:"created_at"`
}

// roomState holds the live state of one room: its transcript, recorded
// exchanges, running total, and the in-flight guard that serializes submits.
// All fields are guarded by mu.
type roomState struct {
	mu sync.Mutex

	id        string // durable room id
	name      string
	createdAt time.Time

	transcript Transcript
	exchanges  []Exchange
	totalCost  float64

	inFlight bool
}

// begin marks the room as awaiting a completion, rejecting concurrent
// submits for the same room.
func (r *roomState) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight {
		return ErrRequestInFlight
	}
	r.inFlight = true
	return nil
}

// end transitions the room back to idle.
func (r *roomState) end() {
	r.mu.Lock()
	r.inFlight = false
	r.mu.Unlock()
}

// stageUser tentatively appends the user entry and returns the transcript
// payload for the completion call. The append is retracted with unstage if
// the call fails. Only reachable while the in-flight guard is held.
func (r *roomState) stageUser(content string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript.Append(RoleUser, content)
	return r.transcript.Entries()
}

// unstage retracts the tentative user entry, restoring the pre-submit
// transcript.
func (r *roomState) unstage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript.truncate(r.transcript.Len() - 1)
}

// replay applies one exchange to the in-memory state without persisting:
// both transcript entries, the exchange record, and the incremental total.
// Rehydration funnels every stored exchange through this same path so a
// reloaded room's total provably equals the from-scratch sum.
func (r *roomState) replay(ex Exchange) {
	r.transcript.Append(RoleUser, ex.UserMessage)
	r.transcript.Append(RoleAssistant, ex.AssistantMessage)
	r.exchanges = append(r.exchanges, ex)
	r.totalCost = pricing.Accumulate(r.totalCost, ex.Cost)
}

// summaryLocked builds a RoomSummary; caller holds mu.
func (r *roomState) summaryLocked() RoomSummary {
	return RoomSummary{
		Name:      r.name,
		RoomID:    r.id,
		Exchanges: len(r.exchanges),
		TotalCost: r.totalCost,
		CreatedAt: r.createdAt,
	}
}

// Session is the explicit per-user context for all core operations, created
// on login and torn down on logout. It owns the owner's rooms and the
// in-memory running totals. Nothing about it is ambient or global.
type Session struct {
	mu    sync.RWMutex
	user  domain.User
	rooms map[string]*roomState
	gw    Gateway

	// userTotal has a dedicated leaf lock so it can be bumped while a room
	// lock is held without ordering against s.mu.
	totalMu   sync.Mutex
	userTotal float64
}

// User returns the owning user identity.
func (s *Session) User() domain.User { return s.user }

// UserTotal returns the user's running total across all rooms.
func (s *Session) UserTotal() float64 {
	s.totalMu.Lock()
	defer s.totalMu.Unlock()
	return s.userTotal
}

// CreateRoom validates the name, persists the room record, and exposes an
// empty room state. The session lock is held across the duplicate check, the
// durable insert, and the map insert, so no partial room state is ever
// visible to a concurrent reader.
func (s *Session) CreateRoom(ctx context.Context, name string) (RoomSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return RoomSummary{}, ErrInvalidRoomName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[name]; exists {
		return RoomSummary{}, ErrDuplicateRoom
	}

	room, err := s.gw.UpsertRoom(ctx, s.user.ID, name)
	if err != nil {
		return RoomSummary{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	rs := &roomState{id: room.ID, name: name, createdAt: room.CreatedAt}
	s.rooms[name] = rs
	return rs.summaryLocked(), nil
}

// DeleteRoom removes the room from the session and instructs the gateway to
// cascade-delete its durable record. A second delete for the same name fails
// with ErrRoomNotFound, which callers treat as already satisfied.
func (s *Session) DeleteRoom(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.rooms[name]
	if !ok {
		return ErrRoomNotFound
	}
	rs.mu.Lock()
	busy := rs.inFlight
	rs.mu.Unlock()
	if busy {
		return ErrRequestInFlight
	}

	if err := s.gw.DeleteRoom(ctx, s.user.ID, name); err != nil && err != ErrRoomNotFound {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	delete(s.rooms, name)
	return nil
}

// ClearRoom resets the room's transcript, exchanges, and running total in
// memory only. The durable history is deliberately untouched: after a reload
// the room reappears with full history. This is a distinct operation from
// any future persisted clear and is named accordingly at the API layer.
func (s *Session) ClearRoom(name string) error {
	rs, err := s.room(name)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.inFlight {
		return ErrRequestInFlight
	}
	rs.transcript.Restore(nil)
	rs.exchanges = nil
	rs.totalCost = 0
	return nil
}

// Transcript returns a copy of the room's current in-memory transcript.
func (s *Session) Transcript(name string) ([]Entry, error) {
	rs, err := s.room(name)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.transcript.Entries(), nil
}

// Exchanges returns a copy of the room's in-memory exchange records.
func (s *Session) Exchanges(name string) ([]Exchange, error) {
	rs, err := s.room(name)
	if err != nil {
		return nil, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]Exchange, len(rs.exchanges))
	copy(out, rs.exchanges)
	return out, nil
}

// Summaries returns the read-only view of every room, in creation order.
func (s *Session) Summaries() []RoomSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RoomSummary, 0, len(s.rooms))
	for _, rs := range s.rooms {
		rs.mu.Lock()
		out = append(out, rs.summaryLocked())
		rs.mu.Unlock()
	}
	sortSummaries(out)
	return out
}

// Summary returns the read-only view of one room.
func (s *Session) Summary(name string) (RoomSummary, error) {
	rs, err := s.room(name)
	if err != nil {
		return RoomSummary{}, err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.summaryLocked(), nil
}

// room resolves a room state by name.
func (s *Session) room(name string) (*roomState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return rs, nil
}

// recordExchange persists the completed exchange through the gateway and,
// only once the durable write succeeded, applies it to the in-memory room
// state. The tentative user entry is expected to still be staged; on
// persistence failure nothing in memory has changed beyond that staged entry,
// which the controller retracts. No caller can observe an in-memory total
// without a corresponding durable record.
func (s *Session) recordExchange(ctx context.Context, rs *roomState, ex *Exchange) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	// Serialized history as of this exchange, staged user entry included.
	entries := append(rs.transcript.Entries(), Entry{Role: RoleAssistant, Content: ex.AssistantMessage})
	blob, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	row := &domain.Exchange{
		RoomID:           rs.id,
		UserID:           s.user.ID,
		UserMessage:      ex.UserMessage,
		AssistantMessage: ex.AssistantMessage,
		TranscriptJSON:   string(blob),
		ModelName:        ex.ModelName,
		TotalTokens:      ex.TotalTokens,
		PromptTokens:     ex.PromptTokens,
		CompletionTokens: ex.CompletionTokens,
		Cost:             ex.Cost,
	}
	if err := s.gw.AppendExchange(ctx, row); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	ex.ID = row.ID
	ex.CreatedAt = row.CreatedAt
	ex.Room = rs.name

	rs.transcript.Append(RoleAssistant, ex.AssistantMessage)
	rs.exchanges = append(rs.exchanges, *ex)
	rs.totalCost = pricing.Accumulate(rs.totalCost, ex.Cost)

	s.totalMu.Lock()
	s.userTotal = pricing.Accumulate(s.userTotal, ex.Cost)
	s.totalMu.Unlock()
	return nil
}

// sortSummaries orders summaries by creation time, then name for stability.
func sortSummaries(items []RoomSummary) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].Name < items[j].Name
	})
}
