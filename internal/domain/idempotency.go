// Package domain defines the persistence models for users, rooms, and
// exchanges. This file holds the idempotency record used to deduplicate
// retried submit requests.
package domain

import "time"

// Idempotency records a previously processed submit request, keyed by
// (user_id, room, key) where room is the owner-scoped room name. A retry
// carrying the same Idempotency-Key within the TTL window is served from the
// recorded exchange instead of re-running the completion call and
// double-charging the room.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_room_key,priority:1"`
	Room       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_room_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_room_key,priority:3"`
	ExchangeID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
