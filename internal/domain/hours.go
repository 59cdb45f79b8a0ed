package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrBadClock is returned when an "HH:MM" wall-clock value cannot be parsed.
var ErrBadClock = errors.New("clock value must be HH:MM")

// Clock is a minute-resolution wall-clock time within a day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses an "HH:MM" string (24h).
func ParseClock(s string) (Clock, error) {
	var c Clock
	if _, err := fmt.Sscanf(s, "%02d:%02d", &c.Hour, &c.Minute); err != nil {
		return Clock{}, ErrBadClock
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return Clock{}, ErrBadClock
	}
	return c, nil
}

// minutes returns the clock as minutes since midnight.
func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

// InRange reports whether c lies inside [start, end). Ranges wrapping past
// midnight (start > end, e.g. 22:00-08:00) are supported.
func (c Clock) InRange(start, end Clock) bool {
	v, s, e := c.minutes(), start.minutes(), end.minutes()
	if s <= e {
		return v >= s && v < e
	}
	return v >= s || v < e
}

// DeliveryAllowedAt reports whether the user's local-time policy permits
// delivery at the given UTC instant. When delivery is deferred it also
// returns the earliest UTC instant at which it becomes allowed again, so the
// caller can log or reschedule; deferral never drops a notification.
//
// Checks run in order: quiet hours, work hours, work days. Malformed window
// strings are ignored rather than blocking delivery (they are validated on
// the user CRUD path).
func (u *User) DeliveryAllowedAt(at time.Time) (bool, time.Time) {
	local := at.In(u.Location())
	now := Clock{Hour: local.Hour(), Minute: local.Minute()}

	if u.QuietHoursStart != "" && u.QuietHoursEnd != "" {
		qs, err1 := ParseClock(u.QuietHoursStart)
		qe, err2 := ParseClock(u.QuietHoursEnd)
		if err1 == nil && err2 == nil && now.InRange(qs, qe) {
			day := local
			// Wrap-around window still in yesterday's tail ends today;
			// in today's head it ends today as well, otherwise tomorrow.
			if qs.minutes() > qe.minutes() && now.minutes() >= qs.minutes() {
				day = day.AddDate(0, 0, 1)
			}
			next := time.Date(day.Year(), day.Month(), day.Day(), qe.Hour, qe.Minute, 0, 0, u.Location())
			return false, next.UTC()
		}
	}

	if u.WorkHoursStart != "" && u.WorkHoursEnd != "" {
		ws, err1 := ParseClock(u.WorkHoursStart)
		we, err2 := ParseClock(u.WorkHoursEnd)
		if err1 == nil && err2 == nil && !now.InRange(ws, we) {
			day := local
			if now.minutes() >= we.minutes() {
				day = day.AddDate(0, 0, 1)
			}
			next := time.Date(day.Year(), day.Month(), day.Day(), ws.Hour, ws.Minute, 0, 0, u.Location())
			return false, next.UTC()
		}
	}

	if len(u.WorkDays) > 0 {
		if !u.WorkDays.Contains(isoWeekday(local)) {
			start := Clock{Hour: 9}
			if u.WorkHoursStart != "" {
				if ws, err := ParseClock(u.WorkHoursStart); err == nil {
					start = ws
				}
			}
			for off := 1; off <= 7; off++ {
				day := local.AddDate(0, 0, off)
				if u.WorkDays.Contains(isoWeekday(day)) {
					next := time.Date(day.Year(), day.Month(), day.Day(), start.Hour, start.Minute, 0, 0, u.Location())
					return false, next.UTC()
				}
			}
		}
	}

	return true, time.Time{}
}

// isoWeekday maps time.Weekday to ISO 8601 numbering (Mon=1..Sun=7).
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
