// Package scheduler drives the engine's two cadences with robfig/cron: the
// fast dispatch tick and the slower due-index refresh. Both jobs are wrapped
// with SkipIfStillRunning so a slow cycle delays rather than stacks; the
// claim step makes overlap harmless anyway, this just avoids wasted work.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/remindery/go-reminder-backend/internal/services"
)

// Scheduler owns the cron runner and the engine services it drives.
type Scheduler struct {
	Dispatch *services.DispatchService
	Index    *services.DueIndexService
	Log      zerolog.Logger

	ScanInterval    time.Duration
	RefreshInterval time.Duration

	cron *cron.Cron
}

// New constructs a Scheduler; Start must be called to begin ticking.
func New(dispatch *services.DispatchService, index *services.DueIndexService, log zerolog.Logger,
	scanInterval, refreshInterval time.Duration) *Scheduler {
	return &Scheduler{
		Dispatch:        dispatch,
		Index:           index,
		Log:             log,
		ScanInterval:    scanInterval,
		RefreshInterval: refreshInterval,
	}
}

// Start performs an initial index refresh (so the first tick has candidates)
// and launches both cadences. Jobs inherit ctx: an in-flight tick completes
// its outstanding claimed deliveries, but no new tick starts after Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Index.Refresh(ctx, time.Now().UTC()); err != nil {
		return fmt.Errorf("initial due-index refresh: %w", err)
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))

	if _, err := s.cron.AddFunc(every(s.ScanInterval), func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Dispatch.RunTick(ctx, time.Now().UTC()); err != nil {
			s.Log.Error().Err(err).Msg("dispatch tick failed")
		}
	}); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(every(s.RefreshInterval), func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.Index.Refresh(ctx, time.Now().UTC()); err != nil {
			s.Log.Error().Err(err).Msg("due-index refresh failed")
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	s.Log.Info().
		Dur("scan_interval", s.ScanInterval).
		Dur("refresh_interval", s.RefreshInterval).
		Msg("scheduler started")
	return nil
}

// Stop halts the cadences and waits for any running job to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.Log.Info().Msg("scheduler stopped")
}

// every renders a duration as a cron @every spec.
func every(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
