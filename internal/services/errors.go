// Package services defines the business logic of the reminder backend: user
// and event CRUD, due-index maintenance, and dispatch. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

var (
	// ErrUserNotFound indicates that the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrEventNotFound indicates that the requested event does not exist or
	// does not belong to the current user.
	ErrEventNotFound = errors.New("event not found")

	// ErrInvalidRecurrenceRule is returned when an event carries a malformed
	// or unsatisfiable recurrence rule. It is surfaced at create/update time
	// so the dispatch path never sees it for active events.
	ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")

	// ErrInvalidKind is returned when an event kind is outside the allowed
	// set (reminder, lesson, birthday).
	ErrInvalidKind = errors.New("kind must be reminder, lesson or birthday")

	// ErrEmptyTitle is returned when an event is created without a title.
	ErrEmptyTitle = errors.New("title is empty")

	// ErrInvalidOffsets is returned when a reminder offset is negative.
	ErrInvalidOffsets = errors.New("reminder offsets must be >= 0 minutes")

	// ErrInvalidTimezone is returned when a user's timezone is not a valid
	// IANA zone name.
	ErrInvalidTimezone = errors.New("unknown IANA timezone")

	// ErrInvalidHours is returned when a quiet/work-hours window is not a
	// pair of HH:MM values.
	ErrInvalidHours = errors.New("hour windows must be HH:MM pairs")

	// ErrDuplicateChatID is returned when a user is registered with a chat
	// handle that is already taken.
	ErrDuplicateChatID = errors.New("chat id already registered")
)
