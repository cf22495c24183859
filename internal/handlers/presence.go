package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

// PresenceHandler manages the presence endpoints.
type PresenceHandler struct {
	userRepo repositories.UserRepository
	notifier *Notifier
}

// NewPresenceHandler builds a PresenceHandler.
func NewPresenceHandler(userRepo repositories.UserRepository, notifier *Notifier) *PresenceHandler {
	return &PresenceHandler{userRepo: userRepo, notifier: notifier}
}

// GetStatus returns the persisted presence fields of a user.
func (h *PresenceHandler) GetStatus(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	status, err := h.userRepo.GetStatus(c.Request.Context(), userID)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// UpdateStatus persists the caller's online flag atomically and broadcasts
// the transition on the shared presence channel. The broadcast is
// fire-and-forget.
func (h *PresenceHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		IsOnline *bool `json:"is_online" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing is_online"})
		return
	}

	userID := c.GetInt("userID")
	status, err := h.userRepo.UpdateStatus(c.Request.Context(), userID, *req.IsOnline)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": "could not update status"})
		return
	}

	observability.IncPresenceTransition(status.IsOnline)
	h.notifier.NotifyStatusChange(c.Request.Context(), models.StatusChange{
		UserID:    status.UserID,
		IsOnline:  status.IsOnline,
		Timestamp: time.Now().UTC(),
	})

	c.JSON(http.StatusOK, status)
}
