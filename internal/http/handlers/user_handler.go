// User HTTP handlers.
//
// Endpoints:
//   - POST  /users           (register a user for a chat handle)
//   - GET   /users           (list users, paginated)
//   - GET   /users/:id       (fetch one user)
//   - PUT   /users/:id       (update timezone and delivery-policy windows)
//
// Handlers are transport-thin: they validate input, delegate to the user
// service, and translate service errors into HTTP results.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/remindery/go-reminder-backend/internal/domain"
	"github.com/remindery/go-reminder-backend/internal/services"
	"github.com/remindery/go-reminder-backend/internal/utils"
)

// RegisterUserRequest is the JSON payload for creating a user.
type RegisterUserRequest struct {
	ChatID   string `json:"chat_id" binding:"required"`
	Timezone string `json:"timezone"`
}

// UpdateUserRequest is the JSON payload for updating delivery settings.
// Empty window strings clear the corresponding policy.
type UpdateUserRequest struct {
	Timezone        string `json:"timezone"`
	QuietHoursStart string `json:"quiet_hours_start"`
	QuietHoursEnd   string `json:"quiet_hours_end"`
	WorkHoursStart  string `json:"work_hours_start"`
	WorkHoursEnd    string `json:"work_hours_end"`
	WorkDays        []int  `json:"work_days"`
}

// RegisterUser creates a user bound to an external chat handle.
func (h *Handlers) RegisterUser(c *gin.Context) {
	var req RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat_id is required")
		return
	}

	u, err := h.Users.Register(c.Request.Context(), req.ChatID, req.Timezone)
	if err != nil {
		switch err {
		case services.ErrInvalidTimezone:
			fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidTimezone, err.Error())
		case services.ErrDuplicateChatID:
			fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, u)
}

// GetUser fetches a user by ID.
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.Users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == services.ErrUserNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateUser updates timezone and quiet/work-hour settings.
func (h *Handlers) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid payload")
		return
	}

	u, err := h.Users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == services.ErrUserNotFound {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	u.Timezone = req.Timezone
	u.QuietHoursStart = req.QuietHoursStart
	u.QuietHoursEnd = req.QuietHoursEnd
	u.WorkHoursStart = req.WorkHoursStart
	u.WorkHoursEnd = req.WorkHoursEnd
	u.WorkDays = domain.IntList(req.WorkDays)

	if err := h.Users.UpdateSettings(c.Request.Context(), u); err != nil {
		switch err {
		case services.ErrInvalidTimezone:
			fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidTimezone, err.Error())
		case services.ErrInvalidHours:
			fail(c, http.StatusUnprocessableEntity, ErrCodeUnprocessable, err.Error())
		case services.ErrUserNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, u)
}

// ListUsers returns a page of users.
func (h *Handlers) ListUsers(c *gin.Context) {
	page, pageSize := utils.ParsePagination(c.Query("page"), c.Query("page_size"))
	items, total, err := h.Users.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{
		"items": items,
		"meta":  utils.PageMeta{Page: page, PageSize: pageSize, Total: total},
	})
}
