// Package services – DispatchService
//
// The dispatch scanner. Each tick asks the due index for candidates whose
// notify instant is due (or narrowly missed), filters them through the
// owner's local-time delivery policy, claims survivors in the notification
// log, and hands claimed payloads to the Sender on a bounded worker pool.
//
// Correctness rests entirely on the claim: repeated ticks, restarts, and
// concurrent replicas may all see the same candidate, but only one insert of
// the (event, occurrence, offset) key succeeds. A claim conflict is a normal
// outcome, not an error. Per-candidate failures are isolated; nothing in a
// tick aborts the remaining batch or the next tick.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/remindery/go-reminder-backend/internal/domain"
	"github.com/remindery/go-reminder-backend/internal/repo"
)

// TickStats summarizes one scanner tick, mostly for logs and tests.
type TickStats struct {
	Candidates int
	Deferred   int
	Conflicts  int
	Sent       int
	Failed     int
	Retried    int
}

// DispatchService drives the Idle -> Scanning -> Claiming -> Delivering
// cycle on every tick.
type DispatchService struct {
	DB     *gorm.DB
	Index  *DueIndexService
	Sender Sender
	Log    zerolog.Logger

	// Tolerance widens the due window backwards to cover scan drift.
	Tolerance time.Duration
	// MaxAttempts bounds delivery retries per notification.
	MaxAttempts int
	// PendingGrace is how long a pending claim may sit before it is treated
	// as a crashed delivery and retried. Never assumed sent.
	PendingGrace time.Duration
	// Workers bounds concurrent deliveries within a tick.
	Workers int
}

// NewDispatchService constructs a DispatchService.
func NewDispatchService(db *gorm.DB, idx *DueIndexService, sender Sender, log zerolog.Logger,
	tolerance time.Duration, maxAttempts int, pendingGrace time.Duration, workers int) *DispatchService {
	if workers <= 0 {
		workers = 1
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &DispatchService{
		DB:           db,
		Index:        idx,
		Sender:       sender,
		Log:          log,
		Tolerance:    tolerance,
		MaxAttempts:  maxAttempts,
		PendingGrace: pendingGrace,
		Workers:      workers,
	}
}

// RunTick processes everything due at now: fresh candidates from the due
// index plus retryable log rows (failed below the attempt cap, or pending
// past the grace period). Candidate outcomes are independent; the returned
// error reflects only the inability to scan at all.
func (s *DispatchService) RunTick(ctx context.Context, now time.Time) (TickStats, error) {
	ctx, span := otel.Tracer("dispatch").Start(ctx, "dispatch.tick")
	defer span.End()

	now = now.UTC()
	var stats TickStats

	candidates, err := s.Index.CandidatesDue(ctx, now, s.Tolerance)
	if err != nil {
		dispatchTicks.WithLabelValues("error").Inc()
		return stats, err
	}
	retryable, err := repo.ListRetryableNotifications(ctx, s.DB, now, s.PendingGrace, s.MaxAttempts, 200)
	if err != nil {
		dispatchTicks.WithLabelValues("error").Inc()
		return stats, err
	}
	stats.Candidates = len(candidates)

	results := make([]candidateResult, len(candidates))
	retryResults := make([]candidateResult, len(retryable))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for i := range candidates {
		i := i
		g.Go(func() error {
			results[i] = s.processCandidate(gctx, candidates[i], now)
			return nil // outcomes are isolated; never cancel siblings
		})
	}
	for i := range retryable {
		i := i
		g.Go(func() error {
			retryResults[i] = s.retryDelivery(gctx, retryable[i], now)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		stats.Deferred += r.deferred
		stats.Conflicts += r.conflict
		stats.Sent += r.sent
		stats.Failed += r.failed
	}
	for _, r := range retryResults {
		if r.sent+r.failed > 0 {
			stats.Retried++
		}
		stats.Deferred += r.deferred
		stats.Conflicts += r.conflict
		stats.Sent += r.sent
		stats.Failed += r.failed
	}

	dispatchTicks.WithLabelValues("ok").Inc()
	s.Log.Info().
		Int("candidates", stats.Candidates).
		Int("deferred", stats.Deferred).
		Int("conflicts", stats.Conflicts).
		Int("sent", stats.Sent).
		Int("failed", stats.Failed).
		Int("retried", stats.Retried).
		Msg("dispatch tick")
	return stats, nil
}

type candidateResult struct {
	deferred, conflict, sent, failed int
}

// processCandidate resolves, policy-checks, claims, and delivers one due
// triple. Every early return is a deliberate non-delivery: the candidate
// either stays in the index (deferral) or is already owned elsewhere.
func (s *DispatchService) processCandidate(ctx context.Context, cand domain.DueNotification, now time.Time) (res candidateResult) {
	ev, err := repo.GetEventByID(ctx, s.DB, cand.EventID)
	if err != nil || !ev.IsActive {
		// Deactivated after indexing; the refresh purge will drop the row.
		dispatchCandidates.WithLabelValues("skipped").Inc()
		return res
	}
	owner, err := repo.GetUser(ctx, s.DB, ev.OwnerID)
	if err != nil {
		dispatchCandidates.WithLabelValues("skipped").Inc()
		return res
	}

	if allowed, next := owner.DeliveryAllowedAt(now); !allowed {
		// Quiet/work hours suppress, never drop. The triple stays
		// unclaimed, and its notify instant moves to the end of the
		// blocking window so neither the tick's due range nor the
		// refresh's trailing-edge purge loses it mid-window.
		dispatchCandidates.WithLabelValues("deferred").Inc()
		if err := repo.PostponeDue(ctx, s.DB, cand.ID, next); err != nil {
			s.Log.Error().Err(err).Str("event_id", ev.ID).Msg("failed to postpone deferred candidate")
		}
		s.Log.Debug().
			Str("event_id", ev.ID).
			Time("next_allowed", next).
			Msg("delivery deferred by local-time policy")
		res.deferred = 1
		return res
	}

	rec, err := repo.ClaimNotification(ctx, s.DB, ev.OwnerID, ev.ID, cand.OccurrenceAt, cand.OffsetMinutes)
	if err == repo.ErrAlreadyClaimed {
		dispatchCandidates.WithLabelValues("conflict").Inc()
		res.conflict = 1
		return res
	}
	if err != nil {
		s.Log.Error().Err(err).Str("event_id", ev.ID).Msg("claim failed")
		return res
	}
	dispatchCandidates.WithLabelValues("claimed").Inc()

	if s.deliver(ctx, rec, ev, owner) {
		res.sent = 1
	} else {
		res.failed = 1
	}
	return res
}

// retryDelivery re-attempts a previously claimed notification. The log row
// is updated in place; the dedup key never changes. Every mutation is gated
// on a reclaim so concurrent replicas listing the same retryable row cannot
// both proceed to the Sender.
func (s *DispatchService) retryDelivery(ctx context.Context, rec domain.NotificationLog, now time.Time) (res candidateResult) {
	reclaim := func() bool {
		err := repo.ReclaimNotification(ctx, s.DB, &rec, now)
		if err == repo.ErrAlreadyClaimed {
			res.conflict = 1
			return false
		}
		if err != nil {
			s.Log.Error().Err(err).Str("log_id", rec.ID).Msg("reclaim failed")
			return false
		}
		return true
	}

	ev, err := repo.GetEventByID(ctx, s.DB, rec.EventID)
	if err != nil || !ev.IsActive {
		// Terminal: the subject of the notification is gone.
		if !reclaim() {
			return res
		}
		_ = repo.MarkNotificationFailed(ctx, s.DB, rec.ID, "event inactive")
		res.failed = 1
		return res
	}
	owner, err := repo.GetUser(ctx, s.DB, ev.OwnerID)
	if err != nil {
		if !reclaim() {
			return res
		}
		_ = repo.MarkNotificationFailed(ctx, s.DB, rec.ID, "owner missing")
		res.failed = 1
		return res
	}
	if allowed, _ := owner.DeliveryAllowedAt(now); !allowed {
		// Untouched, the row stays retryable for the next tick.
		res.deferred = 1
		return res
	}
	if !reclaim() {
		return res
	}
	if s.deliver(ctx, &rec, ev, owner) {
		res.sent = 1
	} else {
		res.failed = 1
	}
	return res
}

// deliver invokes the Sender and commits the outcome to the log row.
func (s *DispatchService) deliver(ctx context.Context, rec *domain.NotificationLog, ev *domain.Event, owner *domain.User) bool {
	n := domain.Notification{
		EventID:       ev.ID,
		OwnerID:       owner.ID,
		ChatID:        owner.ChatID,
		Kind:          ev.Kind,
		Title:         ev.Title,
		OccurrenceAt:  rec.OccurrenceAt,
		OffsetMinutes: rec.OffsetMinutes,
	}
	if err := s.Sender.Send(ctx, n); err != nil {
		deliveries.WithLabelValues("failed").Inc()
		s.Log.Warn().Err(err).
			Str("event_id", ev.ID).
			Int("attempts", rec.Attempts+1).
			Msg("delivery failed")
		if mErr := repo.MarkNotificationFailed(ctx, s.DB, rec.ID, err.Error()); mErr != nil {
			s.Log.Error().Err(mErr).Str("log_id", rec.ID).Msg("failed to record delivery failure")
		}
		return false
	}
	deliveries.WithLabelValues("sent").Inc()
	if err := repo.MarkNotificationSent(ctx, s.DB, rec.ID, time.Now().UTC()); err != nil {
		s.Log.Error().Err(err).Str("log_id", rec.ID).Msg("failed to commit sent status")
	}
	return true
}
