package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/remindery/go-reminder-backend/internal/domain"
)

func newDueDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("due_index_test_%d.db", time.Now().UnixNano()))
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
	if err := db.AutoMigrate(&domain.User{}, &domain.Event{}, &domain.DueNotification{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestUpsertDue_RefreshIsIdempotent(t *testing.T) {
	db := newDueDB(t)
	ctx := context.Background()
	occ := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	trigger := occ.Add(-30 * time.Minute)

	if err := UpsertDue(ctx, db, "u1", "e1", occ, 30, trigger); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	// Re-expanding the same window hits the same triple again.
	if err := UpsertDue(ctx, db, "u1", "e1", occ, 30, trigger); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	n, err := CountDue(ctx, db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("row count = %d, want 1 (upsert must not duplicate)", n)
	}

	// A changed anchor moves the trigger of the existing row.
	moved := trigger.Add(-10 * time.Minute)
	if err := UpsertDue(ctx, db, "u1", "e1", occ, 30, moved); err != nil {
		t.Fatalf("upsert with new trigger: %v", err)
	}
	rows, err := ListDueBetween(ctx, db, moved.Add(-time.Minute), moved.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || !rows[0].TriggerAt.Equal(moved) {
		t.Fatalf("rows = %+v, want single row at %v", rows, moved)
	}
}

func TestListDueBetween_BoundsAndOrder(t *testing.T) {
	db := newDueDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for i, min := range []int{0, 5, 10, 20} {
		trig := base.Add(time.Duration(min) * time.Minute)
		if err := UpsertDue(ctx, db, "u1", fmt.Sprintf("e%d", i), trig, 0, trig); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	// Inclusive on both ends: [base+5m, base+10m] picks exactly two.
	rows, err := ListDueBetween(ctx, db, base.Add(5*time.Minute), base.Add(10*time.Minute), 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(rows), rows)
	}
	if rows[0].TriggerAt.After(rows[1].TriggerAt) {
		t.Fatalf("rows not ordered by trigger_at: %+v", rows)
	}

	// Limit caps the batch.
	rows, err = ListDueBetween(ctx, db, base, base.Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("list with limit: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("limit ignored: got %d rows", len(rows))
	}
}

func TestDeleteDueForEvent(t *testing.T) {
	db := newDueDB(t)
	ctx := context.Background()
	occ := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	for _, off := range []int{0, 30} {
		if err := UpsertDue(ctx, db, "u1", "e1", occ, off, occ.Add(-time.Duration(off)*time.Minute)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := UpsertDue(ctx, db, "u1", "e2", occ, 0, occ); err != nil {
		t.Fatalf("seed other event: %v", err)
	}

	if err := DeleteDueForEvent(ctx, db, "e1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, err := CountDue(ctx, db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("rows left = %d, want only e2's", n)
	}
}

func TestDeleteDueBefore(t *testing.T) {
	db := newDueDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	if err := UpsertDue(ctx, db, "u1", "e1", now.Add(-2*time.Hour), 0, now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("seed old: %v", err)
	}
	if err := UpsertDue(ctx, db, "u1", "e2", now.Add(time.Hour), 0, now.Add(time.Hour)); err != nil {
		t.Fatalf("seed future: %v", err)
	}

	purged, err := DeleteDueBefore(ctx, db, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("delete before: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	n, _ := CountDue(ctx, db)
	if n != 1 {
		t.Fatalf("rows left = %d, want 1", n)
	}
}

func TestDeleteDueForInactiveEvents(t *testing.T) {
	db := newDueDB(t)
	ctx := context.Background()
	occ := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	u, err := CreateUser(ctx, db, &domain.User{ChatID: "chat-1", Timezone: "UTC"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	active, err := CreateEvent(ctx, db, &domain.Event{
		OwnerID: u.ID, Kind: domain.KindReminder, Title: "keep", StartsAt: occ,
	})
	if err != nil {
		t.Fatalf("create active event: %v", err)
	}
	dead, err := CreateEvent(ctx, db, &domain.Event{
		OwnerID: u.ID, Kind: domain.KindReminder, Title: "drop", StartsAt: occ,
	})
	if err != nil {
		t.Fatalf("create dead event: %v", err)
	}
	if err := DeactivateEvent(ctx, db, dead.ID, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	for _, e := range []*domain.Event{active, dead} {
		if err := UpsertDue(ctx, db, u.ID, e.ID, occ, 0, occ); err != nil {
			t.Fatalf("seed index: %v", err)
		}
	}

	purged, err := DeleteDueForInactiveEvents(ctx, db)
	if err != nil {
		t.Fatalf("purge inactive: %v", err)
	}
	if purged != 1 {
		t.Fatalf("purged = %d, want 1", purged)
	}
	rows, err := ListDueBetween(ctx, db, occ.Add(-time.Minute), occ.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].EventID != active.ID {
		t.Fatalf("surviving rows = %+v, want only the active event", rows)
	}
}
