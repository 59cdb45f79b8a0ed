// Event HTTP handlers.
//
// Endpoints (all owner-scoped by the X-User-ID header):
//   - POST   /events         (create; validates the recurrence rule)
//   - GET    /events         (list, paginated)
//   - GET    /events/:id     (fetch one event)
//   - PUT    /events/:id     (update; re-validates and re-indexes)
//   - DELETE /events/:id     (soft delete; purges due-index rows)
//
// A rejected recurrence rule is reported at write time with 422, which is
// what keeps the dispatch path free of rule errors.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remindery/go-reminder-backend/internal/domain"
	"github.com/remindery/go-reminder-backend/internal/services"
	"github.com/remindery/go-reminder-backend/internal/utils"
)

// ownerID resolves the acting user from the X-User-ID header. Authentication
// is handled by the deployment's gateway; this service only scopes data.
func ownerID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

// EventRequest is the JSON payload for creating or updating an event.
type EventRequest struct {
	Kind            string    `json:"kind" binding:"required,oneof=reminder lesson birthday"`
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	StartsAt        time.Time `json:"starts_at" binding:"required"`
	RRule           string    `json:"rrule"`
	ReminderOffsets []int     `json:"reminder_offsets"`
}

// CreateEvent inserts a new event for the acting user.
func (h *Handlers) CreateEvent(c *gin.Context) {
	uid := ownerID(c)
	if uid == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "X-User-ID header is required")
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid payload")
		return
	}

	ev, err := h.Events.Create(c.Request.Context(), &domain.Event{
		OwnerID:         uid,
		Kind:            req.Kind,
		Title:           req.Title,
		Description:     req.Description,
		StartsAt:        req.StartsAt,
		RRule:           req.RRule,
		ReminderOffsets: domain.IntList(req.ReminderOffsets),
	})
	if err != nil {
		failEvent(c, err)
		return
	}
	ok(c, http.StatusCreated, ev)
}

// GetEvent fetches one event owned by the acting user.
func (h *Handlers) GetEvent(c *gin.Context) {
	ev, err := h.Events.Get(c.Request.Context(), c.Param("id"), ownerID(c))
	if err != nil {
		failEvent(c, err)
		return
	}
	ok(c, http.StatusOK, ev)
}

// UpdateEvent replaces the mutable fields of an event.
func (h *Handlers) UpdateEvent(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid payload")
		return
	}

	ev, err := h.Events.Update(c.Request.Context(), &domain.Event{
		ID:              c.Param("id"),
		OwnerID:         ownerID(c),
		Kind:            req.Kind,
		Title:           req.Title,
		Description:     req.Description,
		StartsAt:        req.StartsAt,
		RRule:           req.RRule,
		ReminderOffsets: domain.IntList(req.ReminderOffsets),
	})
	if err != nil {
		failEvent(c, err)
		return
	}
	ok(c, http.StatusOK, ev)
}

// DeleteEvent soft-deletes an event; its notification history is retained.
func (h *Handlers) DeleteEvent(c *gin.Context) {
	if err := h.Events.Deactivate(c.Request.Context(), c.Param("id"), ownerID(c)); err != nil {
		failEvent(c, err)
		return
	}
	noContent(c)
}

// ListEvents returns a page of the acting user's events.
func (h *Handlers) ListEvents(c *gin.Context) {
	page, pageSize := utils.ParsePagination(c.Query("page"), c.Query("page_size"))
	items, total, err := h.Events.ListPage(c.Request.Context(), ownerID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{
		"items": items,
		"meta":  utils.PageMeta{Page: page, PageSize: pageSize, Total: total},
	})
}

// failEvent maps event service errors to HTTP results.
func failEvent(c *gin.Context, err error) {
	switch err {
	case services.ErrEventNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "event not found")
	case services.ErrUserNotFound:
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	case services.ErrInvalidRecurrenceRule:
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidRule, err.Error())
	case services.ErrInvalidKind, services.ErrEmptyTitle, services.ErrInvalidOffsets:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
