package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/middleware"
	"github.com/dealerdesk/wainbox/internal/repository"
)

// ConversationHandler serves the inbox views and thread actions.
type ConversationHandler struct {
	convs    repository.ConversationRepository
	messages repository.MessageRepository
	agents   repository.AgentRepository
	logger   *zap.Logger
}

func NewConversationHandler(
	convs repository.ConversationRepository,
	messages repository.MessageRepository,
	agents repository.AgentRepository,
	logger *zap.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		convs:    convs,
		messages: messages,
		agents:   agents,
		logger:   logger,
	}
}

// List handles GET /v1/conversations?limit=50, newest activity first.
func (h *ConversationHandler) List(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		limit = parsed
		if limit > 200 {
			limit = 200
		}
	}

	conversations, err := h.convs.ListByTenant(c.Request.Context(), middleware.GetTenantID(c), limit)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// ListMessages handles GET /v1/conversations/:id/messages?before=<rfc3339>&limit=50
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return
	}

	var before time.Time
	if b := c.Query("before"); b != "" {
		before, err = time.Parse(time.RFC3339, b)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' parameter"})
			return
		}
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		if limit > 100 {
			limit = 100
		}
	}

	tenantID := middleware.GetTenantID(c)
	conversation, err := h.convs.GetByID(c.Request.Context(), tenantID, conversationID)
	if err != nil {
		h.logger.Error("failed to load conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}

	messages, err := h.messages.ListByConversation(c.Request.Context(), tenantID, conversationID, before, limit)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// MarkRead handles POST /v1/conversations/:id/read: the agent opened
// the thread, so the unread counter resets.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	conversationID, tenantID, ok := h.resolve(c)
	if !ok {
		return
	}

	if err := h.convs.MarkRead(c.Request.Context(), tenantID, conversationID); err != nil {
		h.logger.Error("failed to mark read", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=open snoozed closed"`
}

// SetStatus handles POST /v1/conversations/:id/status
func (h *ConversationHandler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversationID, tenantID, ok := h.resolve(c)
	if !ok {
		return
	}

	if err := h.convs.SetStatus(c.Request.Context(), tenantID, conversationID, req.Status); err != nil {
		h.logger.Error("failed to set status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type assignRequest struct {
	AssigneeID *uuid.UUID `json:"assignee_id"` // null unassigns
}

// Assign handles POST /v1/conversations/:id/assign
func (h *ConversationHandler) Assign(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversationID, tenantID, ok := h.resolve(c)
	if !ok {
		return
	}

	if req.AssigneeID != nil {
		agent, err := h.agents.GetByID(c.Request.Context(), tenantID, *req.AssigneeID)
		if err != nil {
			h.logger.Error("failed to check assignee", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assign"})
			return
		}
		if agent == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "assignee not found"})
			return
		}
	}

	if err := h.convs.Assign(c.Request.Context(), tenantID, conversationID, req.AssigneeID); err != nil {
		h.logger.Error("failed to assign", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assign"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// resolve parses the path id and confirms the conversation exists within
// the caller's tenant. Writes the error response itself when not ok.
func (h *ConversationHandler) resolve(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation ID"})
		return uuid.Nil, uuid.Nil, false
	}

	tenantID := middleware.GetTenantID(c)
	conversation, err := h.convs.GetByID(c.Request.Context(), tenantID, conversationID)
	if err != nil {
		h.logger.Error("failed to load conversation", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return uuid.Nil, uuid.Nil, false
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return uuid.Nil, uuid.Nil, false
	}

	return conversationID, tenantID, true
}
