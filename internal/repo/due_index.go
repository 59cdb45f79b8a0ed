// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the due index:
// the materialized near-term view of upcoming (event, occurrence, offset)
// triples awaiting notification.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/remindery/go-reminder-backend/internal/domain"
)

// UpsertDue inserts or refreshes a due-index row for the triple. The unique
// index on (event_id, occurrence_at, offset_minutes) makes refresh cycles
// idempotent: re-expanding the same window only touches trigger_at.
func UpsertDue(ctx context.Context, db *gorm.DB, ownerID, eventID string, occurrenceAt time.Time, offsetMinutes int, triggerAt time.Time) error {
	now := time.Now().UTC()
	row := &domain.DueNotification{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		EventID:       eventID,
		OccurrenceAt:  occurrenceAt.UTC(),
		OffsetMinutes: offsetMinutes,
		TriggerAt:     triggerAt.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := db.WithContext(ctx).Create(row).Error
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return err
	}
	return db.WithContext(ctx).Model(&domain.DueNotification{}).
		Where("event_id = ? AND occurrence_at = ? AND offset_minutes = ?",
			eventID, occurrenceAt.UTC(), offsetMinutes).
		Updates(map[string]any{"trigger_at": triggerAt.UTC(), "updated_at": now}).Error
}

// ListDueBetween returns index rows whose notify instant lies in [from, to],
// ordered by trigger time. Candidates for the current tick come from
// [now - tolerance, now].
func ListDueBetween(ctx context.Context, db *gorm.DB, from, to time.Time, limit int) ([]domain.DueNotification, error) {
	var out []domain.DueNotification
	err := db.WithContext(ctx).
		Where("trigger_at >= ? AND trigger_at <= ?", from.UTC(), to.UTC()).
		Order("trigger_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// PostponeDue pushes a row's notify instant forward, keeping the dedup key.
// Used when the owner's local-time policy defers delivery: the row must
// outlive the trailing-edge purge until the window reopens.
func PostponeDue(ctx context.Context, db *gorm.DB, id string, triggerAt time.Time) error {
	return db.WithContext(ctx).Model(&domain.DueNotification{}).
		Where("id = ?", id).
		Updates(map[string]any{"trigger_at": triggerAt.UTC(), "updated_at": time.Now().UTC()}).Error
}

// DeleteDueForEvent purges all index rows of one event. Called when an event
// is updated or deactivated so the index never serves stale triples.
func DeleteDueForEvent(ctx context.Context, db *gorm.DB, eventID string) error {
	return db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&domain.DueNotification{}).Error
}

// DeleteDueBefore drops rows whose notify instant has fallen behind the
// horizon's trailing edge. Their claims, if any, already live in the
// notification log; unclaimed ones are past rescue.
func DeleteDueBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("trigger_at < ?", cutoff.UTC()).
		Delete(&domain.DueNotification{})
	return res.RowsAffected, res.Error
}

// DeleteDueForInactiveEvents purges rows belonging to soft-deleted events.
// Guarantees the index invariant even when a deactivation raced the eager
// per-event sync.
func DeleteDueForInactiveEvents(ctx context.Context, db *gorm.DB) (int64, error) {
	sub := db.Model(&domain.Event{}).Select("id").Where("is_active = ?", false)
	res := db.WithContext(ctx).
		Where("event_id IN (?)", sub).
		Delete(&domain.DueNotification{})
	return res.RowsAffected, res.Error
}

// CountDue returns the current index size, exported as a gauge.
func CountDue(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.DueNotification{}).Count(&n).Error
	return n, err
}
