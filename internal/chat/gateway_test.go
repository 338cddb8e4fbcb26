package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seohwan-dev/go-chatroom-backend/internal/domain"
)

// fakeGateway is an in-memory Gateway with injectable failures, standing in
// for the repository layer in core tests.
type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	rooms     []domain.Room
	exchanges map[string][]domain.Exchange
	userTotal map[string]float64

	upsertErr error
	deleteErr error
	appendErr error
	listErr   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		exchanges: make(map[string][]domain.Exchange),
		userTotal: make(map[string]float64),
	}
}

func (g *fakeGateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s-%d", prefix, g.seq)
}

func (g *fakeGateway) UpsertRoom(ctx context.Context, userID, name string) (*domain.Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.upsertErr != nil {
		return nil, g.upsertErr
	}
	for i := range g.rooms {
		if g.rooms[i].UserID == userID && g.rooms[i].Name == name {
			r := g.rooms[i]
			return &r, nil
		}
	}
	room := domain.Room{
		ID:        g.nextID("room"),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC().Add(time.Duration(g.seq) * time.Millisecond),
	}
	g.rooms = append(g.rooms, room)
	return &room, nil
}

func (g *fakeGateway) DeleteRoom(ctx context.Context, userID, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	for i := range g.rooms {
		if g.rooms[i].UserID == userID && g.rooms[i].Name == name {
			delete(g.exchanges, g.rooms[i].ID)
			g.rooms = append(g.rooms[:i], g.rooms[i+1:]...)
			return nil
		}
	}
	return ErrRoomNotFound
}

func (g *fakeGateway) AppendExchange(ctx context.Context, ex *domain.Exchange) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.appendErr != nil {
		return g.appendErr
	}
	ex.ID = g.nextID("ex")
	ex.CreatedAt = time.Now().UTC()
	g.exchanges[ex.RoomID] = append(g.exchanges[ex.RoomID], *ex)
	for i := range g.rooms {
		if g.rooms[i].ID == ex.RoomID {
			g.rooms[i].TotalCost += ex.Cost
		}
	}
	g.userTotal[ex.UserID] += ex.Cost
	return nil
}

func (g *fakeGateway) ListRooms(ctx context.Context, userID string) ([]domain.Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	var out []domain.Room
	for _, r := range g.rooms {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (g *fakeGateway) ListExchanges(ctx context.Context, roomID string) ([]domain.Exchange, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.Exchange, len(g.exchanges[roomID]))
	copy(out, g.exchanges[roomID])
	return out, nil
}

// recordedCount reports how many exchanges the gateway holds for a room.
func (g *fakeGateway) recordedCount(roomID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.exchanges[roomID])
}
