package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/realtime"
)

// RealtimeAuthHandler mints realtime credentials for authenticated callers.
type RealtimeAuthHandler struct {
	issuer *realtime.TokenIssuer
}

// NewRealtimeAuthHandler builds a RealtimeAuthHandler.
func NewRealtimeAuthHandler(issuer *realtime.TokenIssuer) *RealtimeAuthHandler {
	return &RealtimeAuthHandler{issuer: issuer}
}

// IssueToken returns a short-lived grant scoped to the caller's identity.
func (h *RealtimeAuthHandler) IssueToken(c *gin.Context) {
	userID := c.GetInt("userID")

	grant, err := h.issuer.Issue(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue realtime token"})
		return
	}

	c.JSON(http.StatusOK, grant)
}
