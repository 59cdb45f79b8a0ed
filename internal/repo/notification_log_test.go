package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/remindery/go-reminder-backend/internal/domain"
)

func newLogDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("notif_log_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.NotificationLog{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestClaimNotification_FirstClaimWins(t *testing.T) {
	db := newLogDB(t)
	ctx := context.Background()
	occ := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)

	rec, err := ClaimNotification(ctx, db, "u1", "e1", occ, 30)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if rec.Status != domain.StatusPending || rec.Attempts != 0 {
		t.Fatalf("claimed row = %+v, want pending with 0 attempts", rec)
	}

	if _, err := ClaimNotification(ctx, db, "u1", "e1", occ, 30); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}

	// A different offset is a distinct logical notification.
	if _, err := ClaimNotification(ctx, db, "u1", "e1", occ, 0); err != nil {
		t.Fatalf("claim with different offset: %v", err)
	}
	// So is a different occurrence.
	if _, err := ClaimNotification(ctx, db, "u1", "e1", occ.Add(24*time.Hour), 30); err != nil {
		t.Fatalf("claim with different occurrence: %v", err)
	}
}

func TestClaimNotification_ConcurrentSingleWinner(t *testing.T) {
	// Uses the production opener so the busy_timeout pragma covers the
	// write contention of parallel claimers.
	dsn := filepath.Join(t.TempDir(), "concurrent_claim.db")
	db, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	ctx := context.Background()
	occ := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ClaimNotification(ctx, db, "u1", "e1", occ, 0)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for i, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAlreadyClaimed):
			lost++
		default:
			t.Fatalf("claimer %d: unexpected error %v", i, err)
		}
	}
	if won != 1 || lost != n-1 {
		t.Fatalf("winners=%d losers=%d, want exactly one winner", won, lost)
	}
}

func TestMarkNotificationSent(t *testing.T) {
	db := newLogDB(t)
	ctx := context.Background()
	occ := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)

	rec, err := ClaimNotification(ctx, db, "u1", "e1", occ, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	at := time.Date(2026, 3, 10, 13, 0, 5, 0, time.UTC)
	if err := MarkNotificationSent(ctx, db, rec.ID, at); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	got, err := GetNotification(ctx, db, "e1", occ, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusSent || got.Attempts != 1 {
		t.Fatalf("after sent: status=%s attempts=%d", got.Status, got.Attempts)
	}
	if got.DeliveredAt == nil || !got.DeliveredAt.Equal(at) {
		t.Fatalf("delivered_at = %v, want %v", got.DeliveredAt, at)
	}
}

func TestMarkNotificationFailed_IncrementsAttempts(t *testing.T) {
	db := newLogDB(t)
	ctx := context.Background()
	occ := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)

	rec, err := ClaimNotification(ctx, db, "u1", "e1", occ, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := MarkNotificationFailed(ctx, db, rec.ID, "connection refused"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := MarkNotificationFailed(ctx, db, rec.ID, "connection refused again"); err != nil {
		t.Fatalf("mark failed twice: %v", err)
	}

	got, err := GetNotification(ctx, db, "e1", occ, 0)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusFailed || got.Attempts != 2 {
		t.Fatalf("after two failures: status=%s attempts=%d", got.Status, got.Attempts)
	}
	if got.LastError != "connection refused again" {
		t.Fatalf("last_error = %q", got.LastError)
	}
	if got.DeliveredAt != nil {
		t.Fatalf("delivered_at should stay nil on failure, got %v", got.DeliveredAt)
	}
}

func TestListRetryableNotifications(t *testing.T) {
	db := newLogDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	occ := now.Add(-time.Hour)

	// Failed below the attempt cap: retryable.
	failed, err := ClaimNotification(ctx, db, "u1", "e1", occ, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := MarkNotificationFailed(ctx, db, failed.ID, "boom"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	// Failed at the cap: terminal.
	exhausted, err := ClaimNotification(ctx, db, "u1", "e2", occ, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := MarkNotificationFailed(ctx, db, exhausted.ID, "boom"); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}

	// Pending and stale: a crashed delivery, retryable.
	stale, err := ClaimNotification(ctx, db, "u1", "e3", occ, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	old := now.Add(-time.Hour)
	if err := db.Model(&domain.NotificationLog{}).Where("id = ?", stale.ID).
		Update("updated_at", old).Error; err != nil {
		t.Fatalf("age pending row: %v", err)
	}

	// Pending and fresh: in flight, left alone.
	if _, err := ClaimNotification(ctx, db, "u1", "e4", occ, 0); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Sent: never retried.
	sent, err := ClaimNotification(ctx, db, "u1", "e5", occ, 0)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := MarkNotificationSent(ctx, db, sent.ID, now); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	got, err := ListRetryableNotifications(ctx, db, now, 10*time.Minute, 3, 100)
	if err != nil {
		t.Fatalf("list retryable: %v", err)
	}
	ids := map[string]bool{}
	for _, r := range got {
		ids[r.EventID] = true
	}
	if len(got) != 2 || !ids["e1"] || !ids["e3"] {
		t.Fatalf("retryable events = %v, want {e1, e3}", ids)
	}
}

func TestGetNotification_NotFound(t *testing.T) {
	db := newLogDB(t)
	_, err := GetNotification(context.Background(), db, "nope",
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 0)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
