package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/auth"
	"github.com/dealerdesk/wainbox/internal/repository"
)

// Context keys for claims stored in gin.Context.
const (
	ContextKeyAgentID  = "agent_id"
	ContextKeyTenantID = "tenant_id"
	ContextKeyRole     = "role"
)

// AuthMiddleware validates the bearer token and confirms the agent still
// belongs to the tenant named in the claims. A missing or invalid token
// is 401; a valid token whose agent has no membership row is 403. Every
// handler behind this middleware trusts only the tenant id set here.
func AuthMiddleware(secret string, agents repository.AgentRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		agent, err := agents.GetByID(c.Request.Context(), claims.TenantID, claims.AgentID)
		if err != nil {
			logger.Error("membership lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "authorization check failed",
			})
			return
		}
		if agent == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "no tenant membership",
			})
			return
		}

		c.Set(ContextKeyAgentID, claims.AgentID)
		c.Set(ContextKeyTenantID, claims.TenantID)
		c.Set(ContextKeyRole, agent.Role)

		c.Next()
	}
}

func GetAgentID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyAgentID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetTenantID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyTenantID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetRole(c *gin.Context) string {
	val, exists := c.Get(ContextKeyRole)
	if !exists {
		return ""
	}
	role, ok := val.(string)
	if !ok {
		return ""
	}
	return role
}
