// Package repo implements the persistence gateway for domain entities,
// backed by GORM. This file provides repository functions for the Room model.
//
// Functions:
//
//   - UpsertRoom(ctx, db, userID, name) -> *domain.Room, error
//     Returns the existing room for (owner, name) or inserts a new one.
//
//   - ListRooms(ctx, db, userID) -> []domain.Room, error
//     Returns all rooms for an owner in creation order (oldest first), the
//     order the room store rehydrates them in.
//
//   - GetRoomByName(ctx, db, userID, name) -> *domain.Room, error
//     Fetches a single room by owner and name, or ErrNotFound.
//
//   - DeleteRoomCascade(ctx, db, userID, name) -> error
//     Hard-deletes the room and all of its exchanges in one transaction.
//     Returns ErrNotFound when the room does not exist; callers that retry a
//     delete treat that as already-satisfied.
//
//   - RoomsStats(ctx, db, userID) -> (count, maxUpdatedAt, error)
//     Aggregate metadata used to build weak ETags for room listings.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seohwan-dev/go-chatroom-backend/internal/domain"
)

// UpsertRoom returns the room named name owned by userID, creating it with a
// zero running total when absent. Idempotent by (user_id, name).
func UpsertRoom(ctx context.Context, db *gorm.DB, userID, name string) (*domain.Room, error) {
	var r domain.Room
	err := db.WithContext(ctx).Where("user_id = ? AND name = ?", userID, name).First(&r).Error
	if err == nil {
		return &r, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	r = domain.Room{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		TotalCost: 0,
		CreatedAt: time.Now().UTC(),
	}
	if cerr := db.WithContext(ctx).Create(&r).Error; cerr != nil {
		return nil, cerr
	}
	return &r, nil
}

// ListRooms returns all rooms owned by userID, ordered by creation time
// ascending so rehydration replays rooms in arrival order. It returns an
// empty slice if the owner has no rooms.
func ListRooms(ctx context.Context, db *gorm.DB, userID string) ([]domain.Room, error) {
	var out []domain.Room
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// GetRoomByName fetches a single room by owner and name. If the record does
// not exist, it returns ErrNotFound. On other DB errors, the raw error is
// returned.
func GetRoomByName(ctx context.Context, db *gorm.DB, userID, name string) (*domain.Room, error) {
	var r domain.Room
	err := db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, name).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRoomCascade removes the room and every exchange recorded in it. The
// two deletes run in one transaction so no orphaned exchange rows survive a
// partial failure. Returns ErrNotFound when the room is absent.
func DeleteRoomCascade(ctx context.Context, db *gorm.DB, userID, name string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r domain.Room
		if err := tx.Where("user_id = ? AND name = ?", userID, name).First(&r).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", r.ID).Delete(&domain.Exchange{}).Error; err != nil {
			return err
		}
		return tx.Delete(&r).Error
	})
}

// RoomsStats returns aggregate metadata for an owner's rooms: the total number
// of rooms and the most recent updated_at timestamp (nil when the owner has no
// rooms). Used to build weak ETags for GET /rooms.
func RoomsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = db.WithContext(ctx).
		Model(&domain.Room{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct{ Max *time.Time }
	err = db.WithContext(ctx).
		Model(&domain.Room{}).
		Select("MAX(updated_at) AS max").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return 0, nil, err
	}
	return count, row.Max, nil
}
