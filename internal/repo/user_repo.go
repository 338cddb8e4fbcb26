// Package repo implements the persistence gateway for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/seohwan-dev/go-chatroom-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the core and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UpsertUser returns the user with the given name, creating it with a zero
// running total when absent. The operation is idempotent by name: logging in
// twice with the same name yields the same row.
func UpsertUser(ctx context.Context, db *gorm.DB, name string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("name = ?", name).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	u = domain.User{
		ID:        uuid.NewString(),
		Name:      name,
		TotalCost: 0,
		CreatedAt: time.Now().UTC(),
	}
	if cerr := db.WithContext(ctx).Create(&u).Error; cerr != nil {
		// Lost a race with a concurrent login for the same name; re-read.
		var again domain.User
		if rerr := db.WithContext(ctx).Where("name = ?", name).First(&again).Error; rerr == nil {
			return &again, nil
		}
		return nil, cerr
	}
	return &u, nil
}

// GetUser fetches a user by ID, or ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}
