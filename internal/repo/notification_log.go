// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the deduplication log: claim and commit
// operations on NotificationLog rows.
//
// The claim is an atomic insert guarded by the unique index on
// (event_id, occurrence_at, offset_minutes). Losing an insert race yields
// ErrAlreadyClaimed, which callers treat as a normal, silent skip. This is
// the sole deduplication guarantee and holds across process restarts and
// concurrent scanner replicas, because it rests on the storage layer's
// uniqueness constraint rather than in-memory locks.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/remindery/go-reminder-backend/internal/domain"
)

// ErrAlreadyClaimed indicates that a notification log row already exists for
// the given (event_id, occurrence_at, offset_minutes) key: another tick or
// replica owns this notification.
var ErrAlreadyClaimed = errors.New("notification already claimed")

// ClaimNotification atomically inserts a pending log row for the key. On a
// unique-constraint violation it returns ErrAlreadyClaimed; any other error
// is propagated as-is.
func ClaimNotification(ctx context.Context, db *gorm.DB, ownerID, eventID string, occurrenceAt time.Time, offsetMinutes int) (*domain.NotificationLog, error) {
	now := time.Now().UTC()
	rec := &domain.NotificationLog{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		EventID:       eventID,
		OccurrenceAt:  occurrenceAt.UTC(),
		OffsetMinutes: offsetMinutes,
		Status:        domain.StatusPending,
		Attempts:      0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyClaimed
		}
		return nil, err
	}
	return rec, nil
}

// MarkNotificationSent commits a claimed row as delivered.
func MarkNotificationSent(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	at = at.UTC()
	return db.WithContext(ctx).Model(&domain.NotificationLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       domain.StatusSent,
			"delivered_at": &at,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
			"updated_at":   at,
		}).Error
}

// MarkNotificationFailed records a failed delivery attempt in place (same
// row, incremented attempts) so retries never mint a new dedup key.
func MarkNotificationFailed(ctx context.Context, db *gorm.DB, id, reason string) error {
	return db.WithContext(ctx).Model(&domain.NotificationLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.StatusFailed,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ReclaimNotification takes ownership of a retryable row before re-delivery.
// The guarded update only succeeds against the exact (status, attempts,
// updated_at) the caller read, so when two replicas pick up the same row, one
// update matches and the other returns ErrAlreadyClaimed. The winner's row is
// flipped back to pending with a fresh updated_at, which also keeps it out of
// the retryable set until the grace period elapses again.
func ReclaimNotification(ctx context.Context, db *gorm.DB, rec *domain.NotificationLog, now time.Time) error {
	res := db.WithContext(ctx).Model(&domain.NotificationLog{}).
		Where("id = ? AND status = ? AND attempts = ? AND updated_at = ?",
			rec.ID, rec.Status, rec.Attempts, rec.UpdatedAt).
		Updates(map[string]any{
			"status":     domain.StatusPending,
			"updated_at": now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}

// ListRetryableNotifications returns rows eligible for another delivery
// attempt as of now:
//
//   - failed rows with attempts below maxAttempts, and
//   - pending rows not updated within grace — a claim whose delivery never
//     committed (process crash mid-delivery) is retryable, never assumed sent.
func ListRetryableNotifications(ctx context.Context, db *gorm.DB, now time.Time, grace time.Duration, maxAttempts, limit int) ([]domain.NotificationLog, error) {
	var out []domain.NotificationLog
	cutoff := now.UTC().Add(-grace)
	err := db.WithContext(ctx).
		Where("(status = ? AND attempts < ?) OR (status = ? AND updated_at < ?)",
			domain.StatusFailed, maxAttempts, domain.StatusPending, cutoff).
		Order("updated_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetNotification fetches a log row by its dedup key, or ErrNotFound.
func GetNotification(ctx context.Context, db *gorm.DB, eventID string, occurrenceAt time.Time, offsetMinutes int) (*domain.NotificationLog, error) {
	var rec domain.NotificationLog
	err := db.WithContext(ctx).
		Where("event_id = ? AND occurrence_at = ? AND offset_minutes = ?", eventID, occurrenceAt.UTC(), offsetMinutes).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
