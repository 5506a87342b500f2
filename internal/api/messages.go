package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/core"
	"github.com/dealerdesk/wainbox/internal/middleware"
	"github.com/dealerdesk/wainbox/internal/service"
)

// MessageHandler exposes the outbound send endpoints.
type MessageHandler struct {
	outbound *service.Outbound
	logger   *zap.Logger
}

func NewMessageHandler(outbound *service.Outbound, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{outbound: outbound, logger: logger}
}

type sendTextRequest struct {
	ConversationID uuid.UUID `json:"conversation_id" binding:"required"`
	Text           string    `json:"text" binding:"required,min=1,max=4000"`
}

type sendTemplateRequest struct {
	ConversationID uuid.UUID `json:"conversation_id" binding:"required"`
	TemplateName   string    `json:"template_name" binding:"required"`
	Language       string    `json:"language" binding:"required"`
	BodyVars       []string  `json:"body_vars"`
}

type sendFlowRequest struct {
	ConversationID uuid.UUID `json:"conversation_id" binding:"required"`
	FlowID         string    `json:"flow_id" binding:"required"`
	CTAText        string    `json:"cta_text" binding:"required"`
	BodyText       string    `json:"body_text"`
}

// SendText handles POST /v1/messages/send_text
func (h *MessageHandler) SendText(c *gin.Context) {
	var req sendTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.outbound.SendText(
		c.Request.Context(),
		middleware.GetTenantID(c),
		middleware.GetAgentID(c),
		req.ConversationID,
		req.Text,
	)
	h.respond(c, result, err)
}

// SendTemplate handles POST /v1/messages/send_template
func (h *MessageHandler) SendTemplate(c *gin.Context) {
	var req sendTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.outbound.SendTemplate(
		c.Request.Context(),
		middleware.GetTenantID(c),
		middleware.GetAgentID(c),
		req.ConversationID,
		req.TemplateName,
		req.Language,
		req.BodyVars,
	)
	h.respond(c, result, err)
}

// SendFlow handles POST /v1/messages/send_flow
func (h *MessageHandler) SendFlow(c *gin.Context) {
	var req sendFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.outbound.SendFlow(
		c.Request.Context(),
		middleware.GetTenantID(c),
		middleware.GetAgentID(c),
		req.ConversationID,
		req.FlowID,
		req.CTAText,
		req.BodyText,
	)
	h.respond(c, result, err)
}

// respond maps the service error taxonomy onto HTTP. A provider failure
// still carries the local message id: the row exists in failed state and
// the client can retry against it.
func (h *MessageHandler) respond(c *gin.Context, result *service.SendResult, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{
			"ok":            true,
			"message_id":    result.Message.ID,
			"status":        result.Status,
			"wa_message_id": result.WAMessageID,
		})
		return
	}

	var providerErr *core.ProviderSendError
	switch {
	case errors.Is(err, core.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, core.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, core.ErrChannelNotConfigured):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no whatsapp channel configured for this tenant"})
	case errors.As(err, &providerErr):
		body := gin.H{
			"ok":              false,
			"error":           "provider send failed",
			"status":          "failed",
			"provider_status": providerErr.HTTPStatus,
			"provider_error":  providerErr.Body,
		}
		if result != nil && result.Message != nil {
			body["message_id"] = result.Message.ID
		}
		c.JSON(http.StatusBadGateway, body)
	default:
		h.logger.Error("send failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "send failed"})
	}
}
