package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dealerdesk/wainbox/internal/auth"
	"github.com/dealerdesk/wainbox/internal/repository"
)

// AuthHandler handles agent login, the only public API endpoint.
// Tenants and agents are provisioned out of band; there is no signup.
type AuthHandler struct {
	agents    repository.AgentRepository
	tenants   repository.TenantRepository
	jwtSecret string
	logger    *zap.Logger
}

func NewAuthHandler(agents repository.AgentRepository, tenants repository.TenantRepository, jwtSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		agents:    agents,
		tenants:   tenants,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token      string `json:"token"`
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name,omitempty"`
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := h.agents.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.logger.Error("failed to find agent", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	// Same answer for unknown email and wrong password; don't confirm
	// which emails exist.
	if agent == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(agent.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := auth.GenerateToken(agent.ID, agent.TenantID, agent.Role, h.jwtSecret, 24*time.Hour)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	resp := loginResponse{Token: token, TenantID: agent.TenantID.String()}
	if tenant, err := h.tenants.GetByID(c.Request.Context(), agent.TenantID); err == nil && tenant != nil {
		resp.TenantName = tenant.Name
	}

	c.JSON(http.StatusOK, resp)
}
