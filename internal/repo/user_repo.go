// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. The dispatch engine treats users as
// read-only; the write paths here serve the CRUD API.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/remindery/go-reminder-backend/internal/domain"
)

// CreateUser inserts a new User row. The ID is a randomly generated UUID.
func CreateUser(ctx context.Context, db *gorm.DB, u *domain.User) (*domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}
	u.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by ID, or ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByChatID fetches a user by their external transport handle.
func GetUserByChatID(ctx context.Context, db *gorm.DB, chatID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("chat_id = ?", chatID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser persists changes to an existing user. Returns ErrNotFound when
// no row matches the user's ID.
func UpdateUser(ctx context.Context, db *gorm.DB, u *domain.User) error {
	res := db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"timezone":          u.Timezone,
			"quiet_hours_start": u.QuietHoursStart,
			"quiet_hours_end":   u.QuietHoursEnd,
			"work_hours_start":  u.WorkHoursStart,
			"work_hours_end":    u.WorkHoursEnd,
			"work_days":         u.WorkDays,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsers returns the total number of users for pagination.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&n).Error
	return n, err
}

// ListUsersPage returns a page of users ordered by creation time.
func ListUsersPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.User, error) {
	var out []domain.User
	err := db.WithContext(ctx).
		Order("created_at asc").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}
