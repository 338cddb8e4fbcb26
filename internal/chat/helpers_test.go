package chat

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/seohwan-dev/go-chatroom-backend/internal/domain"
)

func zerologNop() zerolog.Logger { return zerolog.Nop() }

func mustInit(t *testing.T, m *Manager, userID string) *Session {
	t.Helper()
	s, err := m.Init(context.Background(), domain.User{ID: userID, Name: userID})
	if err != nil {
		t.Fatalf("Init(%s): %v", userID, err)
	}
	return s
}

func mustCreate(t *testing.T, s *Session, name string) RoomSummary {
	t.Helper()
	summary, err := s.CreateRoom(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateRoom(%s): %v", name, err)
	}
	return summary
}
