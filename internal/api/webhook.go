package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/webhook"
)

const maxWebhookBody = 1 << 20

// WebhookHandler terminates the provider's webhook transport: the GET
// verification handshake and POST event deliveries.
type WebhookHandler struct {
	processor   *webhook.Processor
	verifyToken string
	appSecret   string
	logger      *zap.Logger
}

func NewWebhookHandler(processor *webhook.Processor, verifyToken, appSecret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor:   processor,
		verifyToken: verifyToken,
		appSecret:   appSecret,
		logger:      logger,
	}
}

// Verify handles GET /webhooks/whatsapp, the subscription handshake.
// The provider sends hub.mode=subscribe with our verify token and
// expects the raw challenge echoed back.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}

	h.logger.Warn("webhook verification rejected", zap.String("mode", mode))
	c.String(http.StatusForbidden, "verification failed")
}

// Receive handles POST /webhooks/whatsapp. The signature check is the
// only thing that may fail the transport; once it passes, the response
// is 200 no matter what processing does; a non-2xx would make the
// provider redeliver the same batch forever.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !webhook.VerifySignature(h.appSecret, body, c.GetHeader("X-Hub-Signature-256")) {
		h.logger.Warn("webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	res := h.processor.Handle(c.Request.Context(), body)
	h.logger.Info("webhook processed",
		zap.Int("stored", res.Stored),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("statuses", res.Statuses),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
	)

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
