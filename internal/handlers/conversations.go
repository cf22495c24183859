package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// ConversationHandler manages conversation endpoints.
type ConversationHandler struct {
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	userRepo         repositories.UserRepository
	notifier         *Notifier
	audit            *telemetry.AuditEmitter
}

// NewConversationHandler builds a ConversationHandler.
func NewConversationHandler(conversationRepo repositories.ConversationRepository, messageRepo repositories.MessageRepository, userRepo repositories.UserRepository, notifier *Notifier, audit *telemetry.AuditEmitter) *ConversationHandler {
	return &ConversationHandler{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
		notifier:         notifier,
		audit:            audit,
	}
}

// StartConversation finds or creates the direct conversation with another
// user, or creates a group conversation when member_ids is given.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req struct {
		UserID    int    `json:"user_id"`
		MemberIDs []int  `json:"member_ids"`
		Name      string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")

	if len(req.MemberIDs) > 0 {
		h.createGroup(c, userID, req.Name, req.MemberIDs)
		return
	}

	if req.UserID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing user_id"})
		return
	}
	if req.UserID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start conversation with yourself"})
		return
	}

	if _, err := h.userRepo.Get(c.Request.Context(), req.UserID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}

	conv, err := h.conversationRepo.FindOrCreateDirect(c.Request.Context(), userID, req.UserID)
	if err != nil {
		h.emitAudit(c, "ERROR", "could not start conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": conv.ID})
}

func (h *ConversationHandler) createGroup(c *gin.Context, userID int, name string, memberIDs []int) {
	users, err := h.userRepo.Bulk(c.Request.Context(), memberIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to validate members"})
		return
	}
	if len(users) != len(dedupe(memberIDs)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown member"})
		return
	}

	conv, err := h.conversationRepo.CreateGroup(c.Request.Context(), userID, name, memberIDs)
	if err != nil {
		h.emitAudit(c, "ERROR", "could not create group conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	h.emitAudit(c, "INFO", "group conversation created")
	c.JSON(http.StatusCreated, gin.H{"id": conv.ID})
}

// ListConversations returns the caller's conversations with their last
// messages, most recent activity first.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := c.GetInt("userID")

	convs, err := h.conversationRepo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversations"})
		return
	}

	ids := make([]int, 0, len(convs))
	for _, conv := range convs {
		ids = append(ids, conv.ID)
	}
	lastMessages, err := h.messageRepo.LastMessages(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary := models.ConversationSummary{Conversation: conv}
		if last, ok := lastMessages[conv.ID]; ok {
			summary.LastMessage = &last
		}
		summaries = append(summaries, summary)
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// GetMessages returns the ordered messages of a conversation.
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := c.GetInt("userID")
	conv, err := h.conversationRepo.Get(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if !isParticipant(conv, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	msgs, err := h.messageRepo.ListForConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkSeen adds the caller to the seen set of the listed messages. The
// operation is idempotent; re-marking reports zero updates.
func (h *ConversationHandler) MarkSeen(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	var req struct {
		MessageIDs []int `json:"message_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.MessageIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing message_ids"})
		return
	}

	userID := c.GetInt("userID")
	conv, err := h.conversationRepo.Get(c.Request.Context(), conversationID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrConversationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "conversation not found"})
		return
	}
	if !isParticipant(conv, userID) {
		h.emitAudit(c, "ERROR", "mark seen rejected: not a participant")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	updated, err := h.messageRepo.MarkSeen(c.Request.Context(), conversationID, userID, req.MessageIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark messages seen"})
		return
	}

	if updated > 0 {
		h.notifier.NotifySeen(c.Request.Context(), models.SeenEvent{
			ConversationID: conversationID,
			UserID:         userID,
			MessageIDs:     req.MessageIDs,
		})
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "updated_count": updated})
}

func isParticipant(conv models.Conversation, userID int) bool {
	for _, id := range conv.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func dedupe(ids []int) []int {
	seen := map[int]struct{}{}
	result := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			result = append(result, id)
		}
	}
	return result
}
