// Package services – EventService
//
// Manages the lifecycle of events: validation, persistence, and the eager
// per-event due-index sync that keeps the scanner's view current between
// periodic refresh cycles. Recurrence rules are validated here, at write
// time, which is what lets the dispatch path assume every active event's
// rule is expandable.
package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/remindery/go-reminder-backend/internal/domain"
	"github.com/remindery/go-reminder-backend/internal/recurrence"
	"github.com/remindery/go-reminder-backend/internal/repo"
)

// EventService provides event CRUD with validation and index maintenance.
type EventService struct {
	DB    *gorm.DB
	Index *DueIndexService

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewEventService constructs an EventService with sane defaults.
func NewEventService(db *gorm.DB, idx *DueIndexService) *EventService {
	return &EventService{DB: db, Index: idx, TitleMaxLen: 255}
}

// Create validates and inserts a new event, then syncs its due-index rows so
// near-term occurrences become schedulable without waiting for the next
// periodic refresh.
func (s *EventService) Create(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	if err := s.validate(e); err != nil {
		return nil, err
	}
	if _, err := repo.GetUser(ctx, s.DB, e.OwnerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	ev, err := repo.CreateEvent(ctx, s.DB, e)
	if err != nil {
		return nil, err
	}
	if err := s.Index.SyncEvent(ctx, ev, time.Now().UTC()); err != nil {
		return nil, err
	}
	return ev, nil
}

// Get fetches an event by ID, enforcing ownership.
func (s *EventService) Get(ctx context.Context, id, ownerID string) (*domain.Event, error) {
	ev, err := repo.GetEvent(ctx, s.DB, id, ownerID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// Update validates and persists changes to an event, then re-syncs its index
// rows (old triples are dropped, the new schedule is materialized).
func (s *EventService) Update(ctx context.Context, e *domain.Event) (*domain.Event, error) {
	if err := s.validate(e); err != nil {
		return nil, err
	}
	if err := repo.UpdateEvent(ctx, s.DB, e); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	ev, err := repo.GetEvent(ctx, s.DB, e.ID, e.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := s.Index.SyncEvent(ctx, ev, time.Now().UTC()); err != nil {
		return nil, err
	}
	return ev, nil
}

// Deactivate soft-deletes an event and eagerly purges its due-index rows.
// The periodic refresh purge is the backstop for any race.
func (s *EventService) Deactivate(ctx context.Context, id, ownerID string) error {
	if err := repo.DeactivateEvent(ctx, s.DB, id, ownerID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrEventNotFound
		}
		return err
	}
	return repo.DeleteDueForEvent(ctx, s.DB, id)
}

// ListPage returns a page of the owner's events with the total count.
func (s *EventService) ListPage(ctx context.Context, ownerID string, page, pageSize int) ([]domain.Event, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountEvents(ctx, s.DB, ownerID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Event{}, 0, nil
	}
	items, err := repo.ListEventsPage(ctx, s.DB, ownerID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// validate normalizes and checks an event before persistence.
func (s *EventService) validate(e *domain.Event) error {
	switch e.Kind {
	case domain.KindReminder, domain.KindLesson, domain.KindBirthday:
	default:
		return ErrInvalidKind
	}
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return ErrEmptyTitle
	}
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(e.Title) > s.TitleMaxLen {
		e.Title = string([]rune(e.Title)[:s.TitleMaxLen])
	}
	if err := recurrence.Validate(e.RRule); err != nil {
		return ErrInvalidRecurrenceRule
	}
	for _, off := range e.ReminderOffsets {
		if off < 0 {
			return ErrInvalidOffsets
		}
	}
	sort.Ints([]int(e.ReminderOffsets))
	return nil
}
