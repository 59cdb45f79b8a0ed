// Package domain defines the persistence models for users, events, and the
// scheduling engine's own state (due-index rows and the notification log).
// These types are mapped with GORM and form the core data layer of the
// reminder backend.
package domain

import (
	"time"
)

// Event kinds. A reminder is a one-shot or recurring note to self, a lesson
// is a recurring appointment, a birthday is a yearly date.
const (
	KindReminder = "reminder"
	KindLesson   = "lesson"
	KindBirthday = "birthday"
)

// Notification log statuses. A row is created as pending when a candidate is
// claimed and transitions exactly once to sent or (terminally) failed.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// User owns events and carries the local-time delivery policy. The dispatch
// engine reads users but never mutates them.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - ChatID: opaque transport handle owned by the external sender.
//   - Timezone: IANA zone name (e.g. "Europe/Berlin") used to localize
//     occurrence times and quiet/work-hour checks.
//   - QuietHoursStart / QuietHoursEnd: optional "HH:MM" local window in which
//     deliveries are deferred; may wrap past midnight (e.g. 22:00-08:00).
//   - WorkHoursStart / WorkHoursEnd: optional "HH:MM" local window outside of
//     which deliveries are deferred.
//   - WorkDays: ISO weekdays (1=Mon..7=Sun) on which delivery is allowed;
//     empty means every day.
type User struct {
	ID              string    `json:"id"       gorm:"type:char(36);primaryKey"`
	ChatID          string    `json:"chat_id"  gorm:"type:varchar(64);not null;uniqueIndex"`
	Timezone        string    `json:"timezone" gorm:"type:varchar(64);not null;default:'UTC'"`
	QuietHoursStart string    `json:"quiet_hours_start,omitempty" gorm:"type:varchar(5)"`
	QuietHoursEnd   string    `json:"quiet_hours_end,omitempty"   gorm:"type:varchar(5)"`
	WorkHoursStart  string    `json:"work_hours_start,omitempty"  gorm:"type:varchar(5)"`
	WorkHoursEnd    string    `json:"work_hours_end,omitempty"    gorm:"type:varchar(5)"`
	WorkDays        IntList   `json:"work_days,omitempty"         gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Location resolves the user's IANA timezone, falling back to UTC when the
// zone name is empty or unknown.
func (u *User) Location() *time.Location {
	if u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Event represents a reminder, recurring lesson, or birthday owned by a user.
//
// StartsAt is the anchor: the instant of a one-time event, or the first
// occurrence of a recurring one. RRule, when non-empty, is an RFC 5545
// recurrence rule validated at write time; occurrences inherit the anchor's
// time-of-day in the owner's timezone, so DST transitions shift the UTC
// instant correctly across the year.
//
// IsActive is a soft-delete flag: an inactive event is logically absent from
// all future scans but its rows (and notification history) are retained.
type Event struct {
	ID              string    `json:"id"          gorm:"type:char(36);primaryKey"`
	OwnerID         string    `json:"owner_id"    gorm:"type:char(36);not null;index:idx_owner_events"`
	Kind            string    `json:"kind"        gorm:"type:varchar(16);not null;check:kind IN ('reminder','lesson','birthday')"`
	Title           string    `json:"title"       gorm:"type:varchar(255);not null"`
	Description     string    `json:"description,omitempty" gorm:"type:text"`
	StartsAt        time.Time `json:"starts_at"   gorm:"not null;index"`
	RRule           string    `json:"rrule,omitempty" gorm:"type:text"`
	ReminderOffsets IntList   `json:"reminder_offsets" gorm:"type:text"`
	IsActive        bool      `json:"is_active"   gorm:"not null;default:true;index"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Owner is the user the event belongs to. Events are cascade-deleted
	// if their owner is removed.
	Owner User `json:"-" gorm:"foreignKey:OwnerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Event.
func (Event) TableName() string { return "events" }

// Offsets returns the event's reminder offsets, defaulting to a single
// at-occurrence notification when none are configured.
func (e *Event) Offsets() []int {
	if len(e.ReminderOffsets) == 0 {
		return []int{0}
	}
	return []int(e.ReminderOffsets)
}

// NotificationLog is the durable deduplication record: one row per logical
// notification, keyed by (event_id, occurrence_at, offset_minutes). The
// unique index is the sole correctness mechanism against the scanner's
// at-least-once semantics; rows are never deleted.
type NotificationLog struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	OwnerID       string     `json:"owner_id"       gorm:"type:char(36);not null;index"`
	EventID       string     `json:"event_id"       gorm:"type:char(36);not null;uniqueIndex:ux_notification_key,priority:1"`
	OccurrenceAt  time.Time  `json:"occurrence_at"  gorm:"not null;uniqueIndex:ux_notification_key,priority:2"`
	OffsetMinutes int        `json:"offset_minutes" gorm:"not null;uniqueIndex:ux_notification_key,priority:3"`
	Status        string     `json:"status"         gorm:"type:varchar(16);not null;default:'pending';index"`
	Attempts      int        `json:"attempts"       gorm:"not null;default:0"`
	LastError     string     `json:"last_error,omitempty" gorm:"type:text"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" gorm:"index"`
}

// TableName returns the database table name for NotificationLog.
func (NotificationLog) TableName() string { return "notification_logs" }

// DueNotification is one materialized due-index entry: a near-term
// (event, occurrence, offset) triple with its precomputed notify instant
// (TriggerAt = OccurrenceAt - OffsetMinutes). Rows are rebuilt incrementally
// by the index refresh and purged when the event is deactivated or the
// trigger leaves the horizon.
type DueNotification struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	OwnerID       string    `json:"owner_id"       gorm:"type:char(36);not null;index"`
	EventID       string    `json:"event_id"       gorm:"type:char(36);not null;uniqueIndex:ux_due_key,priority:1;index"`
	OccurrenceAt  time.Time `json:"occurrence_at"  gorm:"not null;uniqueIndex:ux_due_key,priority:2"`
	OffsetMinutes int       `json:"offset_minutes" gorm:"not null;uniqueIndex:ux_due_key,priority:3"`
	TriggerAt     time.Time `json:"trigger_at"     gorm:"not null;index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for DueNotification.
func (DueNotification) TableName() string { return "due_notifications" }

// Notification is the resolved payload handed to the delivery sender. It is
// derived, never persisted; the log row with the same key is its durable
// shadow.
type Notification struct {
	EventID       string    `json:"event_id"`
	OwnerID       string    `json:"owner_id"`
	ChatID        string    `json:"chat_id"`
	Kind          string    `json:"kind"`
	Title         string    `json:"title"`
	OccurrenceAt  time.Time `json:"occurrence_at"`
	OffsetMinutes int       `json:"offset_minutes"`
}
