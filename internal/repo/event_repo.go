// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Event
// model.
//
// Error semantics:
//   - When an event is not found, functions return ErrNotFound.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/remindery/go-reminder-backend/internal/domain"
)

// CreateEvent inserts a new Event row. The event ID is a randomly generated
// UUID and the anchor instant is normalized to UTC.
func CreateEvent(ctx context.Context, db *gorm.DB, e *domain.Event) (*domain.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.StartsAt = e.StartsAt.UTC()
	e.IsActive = true
	e.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

// GetEvent fetches an event by ID ensuring it belongs to ownerID, or
// ErrNotFound if missing.
func GetEvent(ctx context.Context, db *gorm.DB, id, ownerID string) (*domain.Event, error) {
	var e domain.Event
	err := db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEventByID fetches an event by ID regardless of owner. Used by the
// dispatch path, which addresses events by the due-index rows it scanned.
func GetEventByID(ctx context.Context, db *gorm.DB, id string) (*domain.Event, error) {
	var e domain.Event
	err := db.WithContext(ctx).Where("id = ?", id).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEvent persists the mutable fields of an event, enforcing ownership.
// Returns ErrNotFound if no matching row exists.
func UpdateEvent(ctx context.Context, db *gorm.DB, e *domain.Event) error {
	res := db.WithContext(ctx).Model(&domain.Event{}).
		Where("id = ? AND owner_id = ?", e.ID, e.OwnerID).
		Updates(map[string]any{
			"kind":             e.Kind,
			"title":            e.Title,
			"description":      e.Description,
			"starts_at":        e.StartsAt.UTC(),
			"r_rule":           e.RRule,
			"reminder_offsets": e.ReminderOffsets,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateEvent soft-deletes an event by clearing is_active. The row is
// retained; the due index drops it on the next sync/refresh.
func DeactivateEvent(ctx context.Context, db *gorm.DB, id, ownerID string) error {
	res := db.WithContext(ctx).Model(&domain.Event{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Updates(map[string]any{"is_active": false, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveEvents returns every active event. The index refresh walks this
// once per refresh cycle, not per dispatch tick.
func ListActiveEvents(ctx context.Context, db *gorm.DB) ([]domain.Event, error) {
	var out []domain.Event
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("starts_at asc").
		Find(&out).Error
	return out, err
}

// CountEvents returns the total number of events owned by ownerID.
func CountEvents(ctx context.Context, db *gorm.DB, ownerID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Event{}).
		Where("owner_id = ?", ownerID).
		Count(&n).Error
	return n, err
}

// ListEventsPage returns a page of events for ownerID ordered by anchor time.
func ListEventsPage(ctx context.Context, db *gorm.DB, ownerID string, offset, limit int) ([]domain.Event, error) {
	var out []domain.Event
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("starts_at asc").
		Offset(offset).Limit(limit).
		Find(&out).Error
	return out, err
}
