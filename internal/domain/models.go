// Package domain defines the persistence models for users, rooms, and
// exchanges. These types are mapped with GORM and form the durable record
// the in-memory room state is reconstructed from on login.
package domain

import "time"

// User is a chat user identified by a unique name. Users are created on
// first login and never deleted.
//
// TotalCost is the monotonically non-decreasing sum of the cost of every
// completed exchange across all rooms owned by the user. It is bumped inside
// the same transaction that records an exchange, never recomputed in place.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(64);not null;uniqueIndex:ux_user_name"`
	TotalCost float64   `json:"total_cost" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Room is a named conversation scope owned by exactly one user. Room names
// are unique per owner; the same name may exist for different owners.
//
// TotalCost mirrors the sum of Cost over the room's exchanges. Deleting a
// room is a hard delete that cascades to its exchanges.
type Room struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index;uniqueIndex:ux_room_owner_name,priority:1"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null;uniqueIndex:ux_room_owner_name,priority:2"`
	TotalCost float64   `json:"total_cost" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID"`
}

// TableName returns the database table name for Room.
func (Room) TableName() string { return "rooms" }

// Exchange is one user-turn/assistant-turn pair recorded in a room, with the
// token usage and cost derived from the completion response. Rows are
// immutable once written and ordered by (created_at, id) within a room.
//
// TranscriptJSON holds the serialized role/content history as it stood when
// the exchange completed. The live transcript is rebuilt from the
// user/assistant text pairs in order, not from this column; it is retained
// for audit and debugging.
type Exchange struct {
	ID               string    `json:"id"                gorm:"type:char(36);primaryKey"`
	RoomID           string    `json:"room_id"           gorm:"type:char(36);not null;index:idx_room_exchanges,priority:1"`
	UserID           string    `json:"user_id"           gorm:"type:char(36);not null;index"`
	UserMessage      string    `json:"user_message"      gorm:"type:text;not null"`
	AssistantMessage string    `json:"assistant_message" gorm:"type:text;not null"`
	TranscriptJSON   string    `json:"-"                 gorm:"column:transcript;type:text"`
	ModelName        string    `json:"model_name"        gorm:"type:varchar(64);not null"`
	TotalTokens      int       `json:"total_tokens"      gorm:"not null"`
	PromptTokens     int       `json:"prompt_tokens"     gorm:"not null"`
	CompletionTokens int       `json:"completion_tokens" gorm:"not null"`
	Cost             float64   `json:"cost"              gorm:"not null"`
	CreatedAt        time.Time `json:"created_at"        gorm:"index:idx_room_exchanges,priority:2"`

	// Room is the parent conversation. Exchanges are cascade-deleted when
	// their room is removed.
	Room Room `json:"-" gorm:"foreignKey:RoomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Exchange.
func (Exchange) TableName() string { return "messages" }
