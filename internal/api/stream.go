package api

import (
	"github.com/gin-gonic/gin"

	"github.com/dealerdesk/wainbox/internal/middleware"
	"github.com/dealerdesk/wainbox/internal/stream"
)

// StreamHandler bridges the authenticated request into the websocket
// hub.
type StreamHandler struct {
	hub *stream.Hub
}

func NewStreamHandler(hub *stream.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Serve handles GET /v1/stream: upgrades to a websocket scoped to the
// agent's tenant.
func (h *StreamHandler) Serve(c *gin.Context) {
	h.hub.Serve(c.Writer, c.Request, middleware.GetTenantID(c))
}
