package services

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/remindery/go-reminder-backend/internal/domain"
	"github.com/remindery/go-reminder-backend/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_test_%d.db", time.Now().UnixNano()))
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
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestIndex(t *testing.T, db *gorm.DB) *DueIndexService {
	t.Helper()
	return NewDueIndexService(db, zerolog.Nop(), 48*time.Hour, time.Minute, 5*time.Minute)
}

func seedOwner(t *testing.T, db *gorm.DB, tz string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, &domain.User{
		ChatID:   fmt.Sprintf("chat-%d", time.Now().UnixNano()),
		Timezone: tz,
	})
	if err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	return u
}

func TestRefresh_MaterializesOffsetTriples(t *testing.T) {
	db := newServiceDB(t)
	idx := newTestIndex(t, db)
	ctx := context.Background()

	u := seedOwner(t, db, "UTC")
	anchor := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	if _, err := repo.CreateEvent(ctx, db, &domain.Event{
		OwnerID:         u.ID,
		Kind:            domain.KindReminder,
		Title:           "standup",
		StartsAt:        anchor,
		RRule:           "FREQ=DAILY",
		ReminderOffsets: domain.IntList{0, 30},
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	now := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if err := idx.Refresh(ctx, now); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Two occurrences fall inside the 48h horizon, two offsets each.
	n, err := repo.CountDue(ctx, db)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 4 {
		t.Fatalf("index size = %d, want 4 (2 occurrences x 2 offsets)", n)
	}

	// Each offset row triggers ahead of its occurrence.
	rows, err := repo.ListDueBetween(ctx, db, now, now.Add(48*time.Hour), 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, r := range rows {
		want := r.OccurrenceAt.Add(-time.Duration(r.OffsetMinutes) * time.Minute)
		if !r.TriggerAt.Equal(want) {
			t.Fatalf("trigger %v for occurrence %v offset %d, want %v",
				r.TriggerAt, r.OccurrenceAt, r.OffsetMinutes, want)
		}
	}
}

// Occurrence instants must be derived in the owner's zone, so a weekly 09:00
// event in New York lands on 13:00 UTC once daylight saving starts.
func TestRefresh_UsesOwnerTimezoneAcrossDST(t *testing.T) {
	db := newServiceDB(t)
	idx := newTestIndex(t, db)
	ctx := context.Background()

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	u := seedOwner(t, db, "America/New_York")
	anchor := time.Date(2026, 3, 3, 9, 0, 0, 0, ny) // Tuesday, pre-DST
	if _, err := repo.CreateEvent(ctx, db, &domain.Event{
		OwnerID:         u.ID,
		Kind:            domain.KindLesson,
		Title:           "piano",
		StartsAt:        anchor.UTC(),
		RRule:           "FREQ=WEEKLY;BYDAY=TU",
		ReminderOffsets: domain.IntList{0, 30},
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	now := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) // after spring-forward
	if err := idx.Refresh(ctx, now); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	occ := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC) // 09:00 EDT
	rows, err := repo.ListDueBetween(ctx, db, now, now.Add(48*time.Hour), 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 offsets of one occurrence: %+v", len(rows), rows)
	}
	wantTriggers := map[int]time.Time{
		0:  occ,
		30: occ.Add(-30 * time.Minute),
	}
	for _, r := range rows {
		if !r.OccurrenceAt.Equal(occ) {
			t.Fatalf("occurrence = %v, want %v", r.OccurrenceAt, occ)
		}
		if want := wantTriggers[r.OffsetMinutes]; !r.TriggerAt.Equal(want) {
			t.Fatalf("offset %d trigger = %v, want %v", r.OffsetMinutes, r.TriggerAt, want)
		}
	}
}

func TestRefresh_IsIdempotent(t *testing.T) {
	db := newServiceDB(t)
	idx := newTestIndex(t, db)
	ctx := context.Background()

	u := seedOwner(t, db, "UTC")
	if _, err := repo.CreateEvent(ctx, db, &domain.Event{
		OwnerID: u.ID, Kind: domain.KindReminder, Title: "x",
		StartsAt: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC),
		RRule:    "FREQ=DAILY",
	}); err != nil {
		t.Fatalf("create event: %v", err)
	}

	now := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if err := idx.Refresh(ctx, now); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	first, _ := repo.CountDue(ctx, db)
	if err := idx.Refresh(ctx, now); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	second, _ := repo.CountDue(ctx, db)
	if first == 0 || first != second {
		t.Fatalf("index size changed across identical refreshes: %d -> %d", first, second)
	}
}

func TestRefresh_PurgesDeactivatedEvents(t *testing.T) {
	db := newServiceDB(t)
	idx := newTestIndex(t, db)
	ctx := context.Background()

	u := seedOwner(t, db, "UTC")
	e, err := repo.CreateEvent(ctx, db, &domain.Event{
		OwnerID: u.ID, Kind: domain.KindReminder, Title: "x",
		StartsAt: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC),
		RRule:    "FREQ=DAILY",
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	now := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if err := idx.Refresh(ctx, now); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n, _ := repo.CountDue(ctx, db); n == 0 {
		t.Fatal("expected index rows before deactivation")
	}

	if err := repo.DeactivateEvent(ctx, db, e.ID, u.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := idx.Refresh(ctx, now); err != nil {
		t.Fatalf("refresh after deactivation: %v", err)
	}
	if n, _ := repo.CountDue(ctx, db); n != 0 {
		t.Fatalf("index still holds %d rows of a deactivated event", n)
	}
}

func TestRefresh_DropsTriggersBehindTrailingEdge(t *testing.T) {
	db := newServiceDB(t)
	idx := newTestIndex(t, db)
	ctx := context.Background()

	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-time.Hour) // well behind now - tolerance
	if err := repo.UpsertDue(ctx, db, "u1", "ghost", stale, 0, stale); err != nil {
		t.Fatalf("seed stale row: %v", err)
	}

	if err := idx.Refresh(ctx, now); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n, _ := repo.CountDue(ctx, db); n != 0 {
		t.Fatalf("stale row survived refresh, index size %d", n)
	}
}

func TestSyncEvent_EagerAddAndRemove(t *testing.T) {
	db := newServiceDB(t)
	idx := newTestIndex(t, db)
	ctx := context.Background()

	u := seedOwner(t, db, "UTC")
	e, err := repo.CreateEvent(ctx, db, &domain.Event{
		OwnerID: u.ID, Kind: domain.KindBirthday, Title: "bday",
		StartsAt: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}

	now := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if err := idx.SyncEvent(ctx, e, now); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n, _ := repo.CountDue(ctx, db); n != 1 {
		t.Fatalf("index size = %d after sync, want 1", n)
	}

	e.IsActive = false
	if err := idx.SyncEvent(ctx, e, now); err != nil {
		t.Fatalf("sync inactive: %v", err)
	}
	if n, _ := repo.CountDue(ctx, db); n != 0 {
		t.Fatalf("index size = %d after deactivation sync, want 0", n)
	}
}

func TestCandidatesDue_WindowSelection(t *testing.T) {
	db := newServiceDB(t)
	idx := newTestIndex(t, db)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	seedRow := func(event string, trig time.Time) {
		t.Helper()
		if err := repo.UpsertDue(ctx, db, "u1", event, trig, 0, trig); err != nil {
			t.Fatalf("seed %s: %v", event, err)
		}
	}
	seedRow("due-now", now)
	seedRow("just-missed", now.Add(-30*time.Second))
	seedRow("too-old", now.Add(-10*time.Minute))
	seedRow("future", now.Add(time.Hour))

	got, err := idx.CandidatesDue(ctx, now, time.Minute)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	ids := map[string]bool{}
	for _, c := range got {
		ids[c.EventID] = true
	}
	if len(got) != 2 || !ids["due-now"] || !ids["just-missed"] {
		t.Fatalf("candidates = %v, want due-now and just-missed only", ids)
	}
}
