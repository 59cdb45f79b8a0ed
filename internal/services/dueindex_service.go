// Package services – DueIndexService
//
// Maintains the materialized due index: for a bounded look-ahead horizon,
// every (event, occurrence, offset) triple whose notify instant falls inside
// it. The expensive recurrence math runs once per refresh cycle (and eagerly
// per event on CRUD), while the dispatch scanner's per-tick query is a cheap
// range scan on trigger_at. The index is an explicitly owned collaborator
// passed to the scanner; there is no package-level singleton.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/remindery/go-reminder-backend/internal/domain"
	"github.com/remindery/go-reminder-backend/internal/recurrence"
	"github.com/remindery/go-reminder-backend/internal/repo"
)

// DueIndexService owns the refreshable near-term index keyed by event id.
type DueIndexService struct {
	DB  *gorm.DB
	Log zerolog.Logger

	// Horizon is the look-ahead window materialized by a refresh.
	Horizon time.Duration
	// Tolerance is how far behind "now" a trigger may lag and still count
	// as narrowly missed rather than expired.
	Tolerance time.Duration
	// RefreshEvery is the expected refresh cadence, used only to detect
	// staleness at scan time.
	RefreshEvery time.Duration

	mu          sync.Mutex
	lastRefresh time.Time
}

// NewDueIndexService constructs a DueIndexService.
func NewDueIndexService(db *gorm.DB, log zerolog.Logger, horizon, tolerance, refreshEvery time.Duration) *DueIndexService {
	return &DueIndexService{
		DB:           db,
		Log:          log,
		Horizon:      horizon,
		Tolerance:    tolerance,
		RefreshEvery: refreshEvery,
	}
}

// Refresh advances the horizon: purges rows for inactive events and rows
// whose trigger fell behind the trailing edge, then expands every active
// event once and upserts the triples entering the advancing window.
// Idempotent; safe to run concurrently with dispatch ticks.
func (s *DueIndexService) Refresh(ctx context.Context, now time.Time) error {
	started := time.Now()
	now = now.UTC()

	if n, err := repo.DeleteDueForInactiveEvents(ctx, s.DB); err != nil {
		return err
	} else if n > 0 {
		s.Log.Debug().Int64("purged", n).Msg("due index: dropped rows of inactive events")
	}
	if _, err := repo.DeleteDueBefore(ctx, s.DB, now.Add(-s.Tolerance)); err != nil {
		return err
	}

	events, err := repo.ListActiveEvents(ctx, s.DB)
	if err != nil {
		return err
	}

	// Owner timezones are resolved once per refresh, not per event.
	locs := make(map[string]*time.Location)
	for i := range events {
		ev := &events[i]
		loc, ok := locs[ev.OwnerID]
		if !ok {
			owner, err := repo.GetUser(ctx, s.DB, ev.OwnerID)
			if err != nil {
				s.Log.Warn().Err(err).Str("event_id", ev.ID).Msg("due index: owner missing, skipping event")
				continue
			}
			loc = owner.Location()
			locs[ev.OwnerID] = loc
		}
		if err := s.indexEvent(ctx, ev, loc, now); err != nil {
			// Per-event failures do not abort the cycle.
			s.Log.Error().Err(err).Str("event_id", ev.ID).Msg("due index: failed to index event")
		}
	}

	s.mu.Lock()
	s.lastRefresh = now
	s.mu.Unlock()

	if n, err := repo.CountDue(ctx, s.DB); err == nil {
		dueIndexSize.Set(float64(n))
	}
	refreshDuration.Observe(time.Since(started).Seconds())
	s.Log.Info().Int("events", len(events)).Dur("took", time.Since(started)).Msg("due index refreshed")
	return nil
}

// SyncEvent rebuilds the index rows of a single event. Called on the CRUD
// path so creates/updates/deactivations take effect before the next periodic
// refresh.
func (s *DueIndexService) SyncEvent(ctx context.Context, ev *domain.Event, now time.Time) error {
	now = now.UTC()
	if err := repo.DeleteDueForEvent(ctx, s.DB, ev.ID); err != nil {
		return err
	}
	if !ev.IsActive {
		return nil
	}
	owner, err := repo.GetUser(ctx, s.DB, ev.OwnerID)
	if err != nil {
		return err
	}
	return s.indexEvent(ctx, ev, owner.Location(), now)
}

// CandidatesDue returns the indexed triples whose notify instant lies in
// [now - tolerance, now]: due now or narrowly missed by scan-interval drift.
func (s *DueIndexService) CandidatesDue(ctx context.Context, now time.Time, tolerance time.Duration) ([]domain.DueNotification, error) {
	now = now.UTC()

	s.mu.Lock()
	last := s.lastRefresh
	s.mu.Unlock()
	// Staleness is logged and counted, never fatal; the next refresh heals it.
	if !last.IsZero() && s.RefreshEvery > 0 && now.Sub(last) > 2*s.RefreshEvery {
		indexStaleness.Inc()
		s.Log.Warn().Time("last_refresh", last).Msg("due index stale at scan time")
	}

	return repo.ListDueBetween(ctx, s.DB, now.Add(-tolerance), now, 500)
}

// indexEvent expands one event over the horizon and upserts the triples
// whose notify instant lands inside it. Offsets reach before an occurrence,
// so expansion looks past the horizon by the event's largest offset.
func (s *DueIndexService) indexEvent(ctx context.Context, ev *domain.Event, loc *time.Location, now time.Time) error {
	offsets := ev.Offsets()
	maxOffset := 0
	for _, off := range offsets {
		if off > maxOffset {
			maxOffset = off
		}
	}

	windowStart := now.Add(-s.Tolerance)
	windowEnd := now.Add(s.Horizon).Add(time.Duration(maxOffset) * time.Minute)

	occs, err := recurrence.Expand(ev.StartsAt, ev.RRule, loc, windowStart, windowEnd)
	if err != nil {
		return err
	}

	for _, occ := range occs {
		for _, off := range offsets {
			trigger := occ.Add(-time.Duration(off) * time.Minute)
			if trigger.Before(windowStart) || trigger.After(now.Add(s.Horizon)) {
				continue
			}
			if err := repo.UpsertDue(ctx, s.DB, ev.OwnerID, ev.ID, occ, off, trigger); err != nil {
				return err
			}
		}
	}
	return nil
}
