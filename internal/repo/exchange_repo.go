// Package repo implements the persistence gateway for domain entities,
// backed by GORM. This file provides repository functions for the Exchange
// model: the durable, append-only record of user/assistant turns and their
// token costs.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seohwan-dev/go-chatroom-backend/internal/domain"
)

// AppendExchange durably appends one completed exchange and bumps the running
// totals it contributes to. The message insert and the two counter bumps run
// in a single transaction: either the exchange exists with both totals
// advanced, or nothing changed. The room store relies on this boundary to
// keep its in-memory totals aligned with the durable ones.
//
// The caller supplies RoomID, UserID, texts, token counts, and Cost; ID and
// CreatedAt are assigned here.
func AppendExchange(ctx context.Context, db *gorm.DB, ex *domain.Exchange) error {
	ex.ID = uuid.NewString()
	ex.CreatedAt = time.Now().UTC()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ex).Error; err != nil {
			return err
		}

		res := tx.Model(&domain.Room{}).
			Where("id = ?", ex.RoomID).
			Update("total_cost", gorm.Expr("total_cost + ?", ex.Cost))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		res = tx.Model(&domain.User{}).
			Where("id = ?", ex.UserID).
			Update("total_cost", gorm.Expr("total_cost + ?", ex.Cost))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListExchanges returns all exchanges in a room in arrival order
// (CreatedAt ASC, ID ASC). A limit <= 0 returns everything.
func ListExchanges(ctx context.Context, db *gorm.DB, roomID string, limit int) ([]domain.Exchange, error) {
	var out []domain.Exchange
	q := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountExchanges uses a raw COUNT so a missing table surfaces as an error.
func CountExchanges(ctx context.Context, db *gorm.DB, roomID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE room_id = ?", roomID).
		Scan(&total).Error
	return total, err
}

// ListExchangesPage returns a paginated slice in arrival order.
func ListExchangesPage(ctx context.Context, db *gorm.DB, roomID string, offset, limit int) ([]domain.Exchange, error) {
	var out []domain.Exchange
	err := db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetExchange fetches an exchange by ID, or ErrNotFound. Used to serve
// idempotent replays of a previously recorded submit.
func GetExchange(ctx context.Context, db *gorm.DB, id string) (*domain.Exchange, error) {
	var ex domain.Exchange
	if err := db.WithContext(ctx).Where("id = ?", id).First(&ex).Error; err != nil {
		return nil, err
	}
	return &ex, nil
}
