package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/realtime"
	"messaging-service/internal/repositories"
)

func setupPresenceRouter(handler *PresenceHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/presence/:user_id", handler.GetStatus)
	r.POST("/presence", handler.UpdateStatus)
	return r
}

func TestGetStatusSuccess(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewPresenceHandler(userRepo, NewNotifier(new(mocks.BrokerMock)))
	router := setupPresenceRouter(handler)

	lastSeen := time.Now().Add(-time.Minute)
	userRepo.On("GetStatus", mock.Anything, 2).Return(models.PresenceStatus{UserID: 2, IsOnline: false, LastSeen: &lastSeen}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/presence/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.PresenceStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.UserID)
	assert.False(t, resp.IsOnline)
	assert.NotNil(t, resp.LastSeen)
	userRepo.AssertExpectations(t)
}

func TestGetStatusUnknownUser(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	handler := NewPresenceHandler(userRepo, NewNotifier(new(mocks.BrokerMock)))
	router := setupPresenceRouter(handler)

	userRepo.On("GetStatus", mock.Anything, 99).Return(models.PresenceStatus{}, repositories.ErrUserNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/presence/99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatusInvalidID(t *testing.T) {
	handler := NewPresenceHandler(new(mocks.UserRepositoryMock), NewNotifier(new(mocks.BrokerMock)))
	router := setupPresenceRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/presence/abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatusOnline(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	broker := new(mocks.BrokerMock)
	handler := NewPresenceHandler(userRepo, NewNotifier(broker))
	router := setupPresenceRouter(handler)

	userRepo.On("UpdateStatus", mock.Anything, 1, true).Return(models.PresenceStatus{UserID: 1, IsOnline: true}, nil).Once()
	broker.On("Publish", mock.Anything, realtime.PresenceChannel, realtime.EventStatusChange, mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/presence", bytes.NewBufferString(`{"is_online":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	userRepo.AssertExpectations(t)
	broker.AssertExpectations(t)
}

func TestUpdateStatusOfflineSetsLastSeen(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	broker := new(mocks.BrokerMock)
	handler := NewPresenceHandler(userRepo, NewNotifier(broker))
	router := setupPresenceRouter(handler)

	now := time.Now()
	userRepo.On("UpdateStatus", mock.Anything, 1, false).Return(models.PresenceStatus{UserID: 1, IsOnline: false, LastSeen: &now}, nil).Once()
	broker.On("Publish", mock.Anything, realtime.PresenceChannel, realtime.EventStatusChange, mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/presence", bytes.NewBufferString(`{"is_online":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.PresenceStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.IsOnline)
	assert.NotNil(t, resp.LastSeen)
	assert.WithinDuration(t, now, *resp.LastSeen, time.Second)
}

func TestUpdateStatusPublishFailureStillOK(t *testing.T) {
	userRepo := new(mocks.UserRepositoryMock)
	broker := new(mocks.BrokerMock)
	handler := NewPresenceHandler(userRepo, NewNotifier(broker))
	router := setupPresenceRouter(handler)

	userRepo.On("UpdateStatus", mock.Anything, 1, false).Return(models.PresenceStatus{UserID: 1, IsOnline: false}, nil).Once()
	broker.On("Publish", mock.Anything, realtime.PresenceChannel, realtime.EventStatusChange, mock.Anything).Return(assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/presence", bytes.NewBufferString(`{"is_online":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateStatusMissingBody(t *testing.T) {
	handler := NewPresenceHandler(new(mocks.UserRepositoryMock), NewNotifier(new(mocks.BrokerMock)))
	router := setupPresenceRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/presence", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
