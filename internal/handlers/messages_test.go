package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/realtime"
	"messaging-service/internal/repositories"
)

func setupMessageRouter(handler *MessageHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/messages", handler.SendMessage)
	return r
}

func newMessageHandler(convRepo *mocks.ConversationRepositoryMock, msgRepo *mocks.MessageRepositoryMock, userRepo *mocks.UserRepositoryMock, broker *mocks.BrokerMock) *MessageHandler {
	return NewMessageHandler(convRepo, msgRepo, userRepo, NewNotifier(broker), nil)
}

func TestSendMessageSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	broker := new(mocks.BrokerMock)
	handler := newMessageHandler(convRepo, msgRepo, userRepo, broker)
	router := setupMessageRouter(handler)

	conv := models.Conversation{ID: 5, UserIDs: []int{1, 2}}
	msg := models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hi", SeenIDs: []int64{1}}

	convRepo.On("Get", mock.Anything, 5).Return(conv, nil).Once()
	msgRepo.On("Create", mock.Anything, 5, 1, "hi", (*string)(nil), mock.Anything).Return(msg, nil).Once()
	userRepo.On("Get", mock.Anything, 1).Return(models.User{ID: 1, Name: "alice"}, nil).Once()
	broker.On("Publish", mock.Anything, realtime.ConversationChannel(5), realtime.EventNewMessage, mock.Anything).Return(nil).Once()
	broker.On("Publish", mock.Anything, realtime.UserConversationsChannel(2), realtime.EventConversationUpdate, mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"conversation_id":5,"message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 7, resp.ID)
	assert.Equal(t, "alice", resp.SenderName)
	assert.Equal(t, []int64{1}, []int64(resp.SeenIDs))
	convRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
	broker.AssertExpectations(t)
}

func TestSendMessageGroupFanOutSkipsSender(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	broker := new(mocks.BrokerMock)
	handler := newMessageHandler(convRepo, msgRepo, userRepo, broker)
	router := setupMessageRouter(handler)

	conv := models.Conversation{ID: 9, IsGroup: true, UserIDs: []int{1, 2, 3}}
	msg := models.Message{ID: 11, ConversationID: 9, SenderID: 1, Content: "hello", SenderName: "alice"}

	convRepo.On("Get", mock.Anything, 9).Return(conv, nil).Once()
	msgRepo.On("Create", mock.Anything, 9, 1, "hello", (*string)(nil), mock.Anything).Return(msg, nil).Once()
	broker.On("Publish", mock.Anything, realtime.ConversationChannel(9), realtime.EventNewMessage, mock.Anything).Return(nil).Once()
	broker.On("Publish", mock.Anything, realtime.UserConversationsChannel(2), realtime.EventConversationUpdate, mock.Anything).Return(nil).Once()
	broker.On("Publish", mock.Anything, realtime.UserConversationsChannel(3), realtime.EventConversationUpdate, mock.Anything).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"conversation_id":9,"message":"hello"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	broker.AssertExpectations(t)
	broker.AssertNotCalled(t, "Publish", mock.Anything, realtime.UserConversationsChannel(1), realtime.EventConversationUpdate, mock.Anything)
}

func TestSendMessagePublishFailureStillCreated(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	broker := new(mocks.BrokerMock)
	handler := newMessageHandler(convRepo, msgRepo, userRepo, broker)
	router := setupMessageRouter(handler)

	conv := models.Conversation{ID: 5, UserIDs: []int{1, 2}}
	msg := models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hi", SenderName: "alice"}

	convRepo.On("Get", mock.Anything, 5).Return(conv, nil).Once()
	msgRepo.On("Create", mock.Anything, 5, 1, "hi", (*string)(nil), mock.Anything).Return(msg, nil).Once()
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"conversation_id":5,"message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestSendMessageNotParticipant(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	handler := newMessageHandler(convRepo, msgRepo, new(mocks.UserRepositoryMock), new(mocks.BrokerMock))
	router := setupMessageRouter(handler)

	convRepo.On("Get", mock.Anything, 5).Return(models.Conversation{ID: 5, UserIDs: []int{2, 3}}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"conversation_id":5,"message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	msgRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageUnknownConversation(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := newMessageHandler(convRepo, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.BrokerMock))
	router := setupMessageRouter(handler)

	convRepo.On("Get", mock.Anything, 5).Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"conversation_id":5,"message":"hi"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageEmptyBody(t *testing.T) {
	handler := newMessageHandler(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), new(mocks.BrokerMock))
	router := setupMessageRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/messages", bytes.NewBufferString(`{"conversation_id":5}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageClientIDForwarded(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	broker := new(mocks.BrokerMock)
	handler := newMessageHandler(convRepo, msgRepo, userRepo, broker)
	router := setupMessageRouter(handler)

	clientID := "0b2e64a5-4c24-4b0b-8a53-1e7a5ac2d101"
	conv := models.Conversation{ID: 5, UserIDs: []int{1, 2}}
	msg := models.Message{ID: 7, ConversationID: 5, SenderID: 1, Content: "hi", ClientMessageID: clientID, SenderName: "alice"}

	convRepo.On("Get", mock.Anything, 5).Return(conv, nil).Once()
	msgRepo.On("Create", mock.Anything, 5, 1, "hi", (*string)(nil), clientID).Return(msg, nil).Once()
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	body := bytes.NewBufferString(`{"conversation_id":5,"message":"hi","client_message_id":"` + clientID + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	msgRepo.AssertExpectations(t)
}
