// Package recurrence turns an event's recurrence rule into concrete
// occurrence instants. Expansion is windowed and pure: the same event and
// window always yield the same ascending, finite sequence of UTC instants.
//
// Recurring events iterate in the owner's timezone so that each occurrence
// keeps the anchor's wall-clock time; the UTC instant therefore shifts
// correctly across DST transitions.
package recurrence

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrInvalidRule indicates a malformed or unsatisfiable recurrence rule
// (unparseable RRULE, zero or negative interval). It is surfaced at event
// create/update time so dispatch never encounters it for active events.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// maxOccurrencesPerWindow caps expansion as a safety net against
// pathologically dense rules. Windowed iteration already guarantees
// finiteness for unbounded rules (yearly birthdays with no UNTIL).
const maxOccurrencesPerWindow = 1000

// zeroIntervalRE matches an explicit INTERVAL=0, which rrule parsing accepts
// but which would otherwise be silently coerced instead of rejected.
var zeroIntervalRE = regexp.MustCompile(`(?i)INTERVAL=0(;|$)`)

// Validate checks that rule is a well-formed, satisfiable RRULE. An empty
// rule is valid (one-time event).
func Validate(rule string) error {
	if rule == "" {
		return nil
	}
	if zeroIntervalRE.MatchString(rule) {
		return ErrInvalidRule
	}
	// A rule without FREQ would fall back to the parser's zero-value
	// frequency (yearly) instead of failing; reject it outright.
	if !strings.Contains(strings.ToUpper(rule), "FREQ=") {
		return ErrInvalidRule
	}
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return ErrInvalidRule
	}
	if opt.Interval < 0 {
		return ErrInvalidRule
	}
	if _, err := rrule.NewRRule(*opt); err != nil {
		return ErrInvalidRule
	}
	return nil
}

// Expand returns the UTC occurrence instants of the event intersecting the
// inclusive window [start, end], ascending.
//
//   - anchor is the event's starts_at; for recurring events its time-of-day
//     is interpreted in loc (the owner's timezone) per occurrence.
//   - rule is the event's RRULE, empty for one-time events.
//   - An UNTIL bound falling mid-window truncates the sequence at the bound,
//     inclusive (handled by rrule iteration).
func Expand(anchor time.Time, rule string, loc *time.Location, start, end time.Time) ([]time.Time, error) {
	if end.Before(start) {
		return nil, nil
	}
	if loc == nil {
		loc = time.UTC
	}

	if rule == "" {
		at := anchor.UTC()
		if at.Before(start.UTC()) || at.After(end.UTC()) {
			return nil, nil
		}
		return []time.Time{at}, nil
	}

	if err := Validate(rule); err != nil {
		return nil, err
	}
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, ErrInvalidRule
	}
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, ErrInvalidRule
	}

	// Anchor in the owner's zone so iteration preserves wall-clock time
	// across DST; the window is aligned to the same zone for Between.
	r.DTStart(anchor.In(loc))

	times := r.Between(start.In(loc), end.In(loc), true)
	if len(times) > maxOccurrencesPerWindow {
		times = times[:maxOccurrencesPerWindow]
	}

	out := make([]time.Time, 0, len(times))
	for _, t := range times {
		out = append(out, t.UTC())
	}
	return out, nil
}

// Next returns the first occurrence at or after the given instant, looking
// ahead at most horizon. The boolean is false when no occurrence exists in
// that range.
func Next(anchor time.Time, rule string, loc *time.Location, after time.Time, horizon time.Duration) (time.Time, bool, error) {
	occs, err := Expand(anchor, rule, loc, after, after.Add(horizon))
	if err != nil || len(occs) == 0 {
		return time.Time{}, false, err
	}
	return occs[0], true, nil
}
