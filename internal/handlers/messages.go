package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// MessageHandler manages the send-message endpoint.
type MessageHandler struct {
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	userRepo         repositories.UserRepository
	notifier         *Notifier
	audit            *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(conversationRepo repositories.ConversationRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, notifier *Notifier, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		notifier:         notifier,
		audit:            audit,
	}
}

// SendMessage persists a message and fans out realtime notifications. The
// message is durable before any publish is attempted; publish failures are
// surfaced to observability but do not fail the request.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req struct {
		ConversationID  int     `json:"conversation_id" binding:"required"`
		Message         string  `json:"message"`
		Image           *string `json:"image"`
		ClientMessageID string  `json:"client_message_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Message == "" && req.Image == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}

	clientMessageID := req.ClientMessageID
	if clientMessageID == "" {
		clientMessageID = uuid.NewString()
	} else if _, err := uuid.Parse(clientMessageID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client_message_id"})
		return
	}

	userID := c.GetInt("userID")
	conv, err := h.conversationRepo.Get(c.Request.Context(), req.ConversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if !isParticipant(conv, userID) {
		h.emitAudit(c, "ERROR", "send rejected: not a participant")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	msg, err := h.messageRepo.Create(c.Request.Context(), conv.ID, userID, req.Message, req.Image, clientMessageID)
	if err != nil {
		h.emitAudit(c, "ERROR", "could not store message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}
	observability.IncMessageStored()

	// Resolve sender fields for the optimistic UI update.
	if msg.SenderName == "" {
		if sender, err := h.userRepo.Get(c.Request.Context(), userID); err == nil {
			msg.SenderName = sender.Name
			msg.SenderImage = sender.Image
		}
	}

	if report := h.notifier.NotifyNewMessage(c.Request.Context(), conv, msg); !report.FullyNotified() {
		h.emitAudit(c, "ERROR", "message stored but not fully notified")
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	emitAudit(c, h.audit, level, text)
}
