package handlers

import (
	"github.com/remindery/go-reminder-backend/internal/services"
)

// Handlers bundles the API's service dependencies. All endpoints hang off
// this struct so the router wires dependencies in one place.
type Handlers struct {
	Users  *services.UserService
	Events *services.EventService
}

// New constructs the handler set.
func New(users *services.UserService, events *services.EventService) *Handlers {
	return &Handlers{Users: users, Events: events}
}
