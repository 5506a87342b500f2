package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/auth"
	"github.com/dealerdesk/wainbox/internal/models"
)

type fakeAgents struct {
	byID map[uuid.UUID]*models.Agent
}

func (f *fakeAgents) GetByID(ctx context.Context, tenantID uuid.UUID, agentID uuid.UUID) (*models.Agent, error) {
	agent := f.byID[agentID]
	if agent == nil || agent.TenantID != tenantID {
		return nil, nil
	}
	return agent, nil
}

func (f *fakeAgents) GetByEmail(ctx context.Context, email string) (*models.Agent, error) {
	for _, agent := range f.byID {
		if agent.Email == email {
			return agent, nil
		}
	}
	return nil, nil
}

func newAuthRouter(agents *fakeAgents, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(secret, agents, zap.NewNop()))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"agent_id":  GetAgentID(c).String(),
			"tenant_id": GetTenantID(c).String(),
			"role":      GetRole(c),
		})
	})
	return r
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	t.Parallel()

	agentID := uuid.New()
	tenantID := uuid.New()
	agents := &fakeAgents{byID: map[uuid.UUID]*models.Agent{
		agentID: {ID: agentID, TenantID: tenantID, Role: "admin"},
	}}

	token, err := auth.GenerateToken(agentID, tenantID, "agent", "secret", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newAuthRouter(agents, "secret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), agentID.String())
	assert.Contains(t, w.Body.String(), tenantID.String())
	// Role comes from the membership row, not the token.
	assert.Contains(t, w.Body.String(), "admin")
}

func TestAuthMiddlewareMissingAndMalformedHeaders(t *testing.T) {
	t.Parallel()

	agents := &fakeAgents{byID: map[uuid.UUID]*models.Agent{}}
	router := newAuthRouter(agents, "secret")

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer not-a-jwt"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestAuthMiddlewareWrongSecret(t *testing.T) {
	t.Parallel()

	agents := &fakeAgents{byID: map[uuid.UUID]*models.Agent{}}
	token, err := auth.GenerateToken(uuid.New(), uuid.New(), "agent", "other-secret", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newAuthRouter(agents, "secret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddlewareRevokedMembership(t *testing.T) {
	t.Parallel()

	// Token is valid but the agent row is gone (or moved tenants):
	// authenticated, not authorized.
	agents := &fakeAgents{byID: map[uuid.UUID]*models.Agent{}}
	token, err := auth.GenerateToken(uuid.New(), uuid.New(), "agent", "secret", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newAuthRouter(agents, "secret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "no tenant membership")
}

func TestAuthMiddlewareTenantMismatch(t *testing.T) {
	t.Parallel()

	agentID := uuid.New()
	agents := &fakeAgents{byID: map[uuid.UUID]*models.Agent{
		agentID: {ID: agentID, TenantID: uuid.New(), Role: "agent"},
	}}

	// Claims name a tenant the agent does not belong to.
	token, err := auth.GenerateToken(agentID, uuid.New(), "agent", "secret", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newAuthRouter(agents, "secret").ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
