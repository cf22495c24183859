package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/realtime"
)

func TestIssueTokenReturnsVerifiableGrant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	issuer := realtime.NewTokenIssuer([]byte("test-secret"), time.Hour)
	handler := NewRealtimeAuthHandler(issuer)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 42)
		c.Next()
	})
	r.POST("/realtime-auth", handler.IssueToken)

	req := httptest.NewRequest(http.MethodPost, "/realtime-auth", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var grant realtime.Grant
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&grant))

	claims, err := issuer.Verify(grant.Token)
	require.NoError(t, err)
	assert.Equal(t, 42, claims.UserID)
	assert.Contains(t, grant.Channels, realtime.UserConversationsChannel(42))
	assert.Contains(t, grant.Channels, realtime.PresenceChannel)
}
