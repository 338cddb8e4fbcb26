package chat

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/seohwan-dev/go-chatroom-backend/internal/domain"
)

// costTolerance bounds the float drift accepted between an incrementally
// maintained total and a from-scratch recomputation before a warning is
// logged.
const costTolerance = 1e-9

// Manager owns the in-memory sessions, one per logged-in user. Init
// rehydrates a session from the gateway; Teardown discards it. Sessions for
// different users are independent and operate in parallel.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	gw       Gateway
	log      zerolog.Logger
}

// NewManager constructs a Manager over the given gateway.
func NewManager(gw Gateway, log zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		gw:       gw,
		log:      log,
	}
}

// Init creates (or returns) the session for user, reconstructing all room
// state from the gateway. Calling Init again for an already active user
// returns the live session untouched, so a reconnecting client does not
// discard in-flight state.
func (m *Manager) Init(ctx context.Context, user domain.User) (*Session, error) {
	m.mu.RLock()
	if s, ok := m.sessions[user.ID]; ok {
		m.mu.RUnlock()
		return s, nil
	}
	m.mu.RUnlock()

	s, err := m.rehydrate(ctx, user)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[user.ID]; ok {
		// Lost a race with a concurrent login; keep the first session.
		return existing, nil
	}
	m.sessions[user.ID] = s
	return s, nil
}

// Session returns the active session for userID, or ErrNoSession.
func (m *Manager) Session(userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Teardown discards the in-memory session for userID. Durable state is
// untouched; the next Init rebuilds from the gateway.
func (m *Manager) Teardown(userID string) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

// rehydrate reconstructs a session by replaying every stored exchange through
// the same in-memory record path used during live operation. The replayed
// totals are therefore from-scratch sums, and comparing them against the
// incrementally maintained durable totals is a live consistency check:
// divergence is logged as a warning, never silently trusted or patched.
func (m *Manager) rehydrate(ctx context.Context, user domain.User) (*Session, error) {
	rooms, err := m.gw.ListRooms(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s := &Session{
		user:      user,
		userTotal: user.TotalCost,
		rooms:     make(map[string]*roomState, len(rooms)),
		gw:        m.gw,
	}

	var replayedSum float64
	for _, room := range rooms {
		exchanges, err := m.gw.ListExchanges(ctx, room.ID)
		if err != nil {
			return nil, err
		}

		rs := &roomState{id: room.ID, name: room.Name, createdAt: room.CreatedAt}
		for _, row := range exchanges {
			rs.replay(Exchange{
				ID:               row.ID,
				Room:             room.Name,
				UserMessage:      row.UserMessage,
				AssistantMessage: row.AssistantMessage,
				ModelName:        row.ModelName,
				TotalTokens:      row.TotalTokens,
				PromptTokens:     row.PromptTokens,
				CompletionTokens: row.CompletionTokens,
				Cost:             row.Cost,
				CreatedAt:        row.CreatedAt,
			})
		}

		if diff := math.Abs(rs.totalCost - room.TotalCost); diff > costTolerance {
			m.log.Warn().
				Str("user_id", user.ID).
				Str("room", room.Name).
				Float64("stored_total", room.TotalCost).
				Float64("replayed_total", rs.totalCost).
				Float64("diff", diff).
				Msg("room total diverges from replayed exchange sum")
		}

		replayedSum += rs.totalCost
		s.rooms[room.Name] = rs
	}

	// The durable user total is only ever maintained incrementally, so it is
	// reconciled here against the per-room sums. The durable value stays
	// authoritative; drift is surfaced, not repaired.
	if diff := math.Abs(replayedSum - user.TotalCost); diff > costTolerance {
		m.log.Warn().
			Str("user_id", user.ID).
			Float64("stored_total", user.TotalCost).
			Float64("room_sum", replayedSum).
			Float64("diff", diff).
			Msg("user total diverges from per-room sum")
	}

	return s, nil
}
