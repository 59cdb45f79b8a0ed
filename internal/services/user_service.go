// Package services – UserService
//
// Manages user registration and delivery-policy settings (timezone,
// quiet/work hours, work days). The dispatch engine only reads users; every
// mutation flows through here so that timezone names and HH:MM windows are
// validated before the scanner can meet them.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/remindery/go-reminder-backend/internal/domain"
	"github.com/remindery/go-reminder-backend/internal/repo"
)

// UserService provides user-level operations.
type UserService struct {
	DB *gorm.DB
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// Register creates a user for an external chat handle with an optional
// timezone (defaults to UTC).
func (s *UserService) Register(ctx context.Context, chatID, timezone string) (*domain.User, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, ErrUserNotFound
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, ErrInvalidTimezone
	}
	u, err := repo.CreateUser(ctx, s.DB, &domain.User{ChatID: chatID, Timezone: timezone})
	if err != nil {
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(low, "unique") {
			return nil, ErrDuplicateChatID
		}
		return nil, err
	}
	return u, nil
}

// Get fetches a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	u, err := repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// UpdateSettings validates and persists the user's timezone and local-time
// delivery windows. Empty window strings clear the corresponding policy.
func (s *UserService) UpdateSettings(ctx context.Context, u *domain.User) error {
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(u.Timezone); err != nil {
		return ErrInvalidTimezone
	}
	if err := validateWindow(u.QuietHoursStart, u.QuietHoursEnd); err != nil {
		return err
	}
	if err := validateWindow(u.WorkHoursStart, u.WorkHoursEnd); err != nil {
		return err
	}
	for _, d := range u.WorkDays {
		if d < 1 || d > 7 {
			return ErrInvalidHours
		}
	}
	err := repo.UpdateUser(ctx, s.DB, u)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// ListPage returns a page of users with the total count.
func (s *UserService) ListPage(ctx context.Context, page, pageSize int) ([]domain.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountUsers(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.User{}, 0, nil
	}
	items, err := repo.ListUsersPage(ctx, s.DB, (page-1)*pageSize, pageSize)
	return items, total, err
}

// validateWindow checks that start/end are both empty or both valid HH:MM.
func validateWindow(start, end string) error {
	if start == "" && end == "" {
		return nil
	}
	if start == "" || end == "" {
		return ErrInvalidHours
	}
	if _, err := domain.ParseClock(start); err != nil {
		return ErrInvalidHours
	}
	if _, err := domain.ParseClock(end); err != nil {
		return ErrInvalidHours
	}
	return nil
}
