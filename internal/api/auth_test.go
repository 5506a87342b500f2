package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dealerdesk/wainbox/internal/auth"
	"github.com/dealerdesk/wainbox/internal/models"
)

type loginAgents struct {
	agent *models.Agent
}

func (f loginAgents) GetByID(ctx context.Context, tenantID, agentID uuid.UUID) (*models.Agent, error) {
	return nil, nil
}

func (f loginAgents) GetByEmail(ctx context.Context, email string) (*models.Agent, error) {
	if f.agent != nil && f.agent.Email == email {
		return f.agent, nil
	}
	return nil, nil
}

type loginTenants struct {
	tenant *models.Tenant
}

func (f loginTenants) GetByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	if f.tenant != nil && f.tenant.ID == tenantID {
		return f.tenant, nil
	}
	return nil, nil
}

func newLoginRouter(t *testing.T, password string) (*gin.Engine, *models.Agent) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	tenant := &models.Tenant{ID: uuid.New(), Name: "Concesionaria Sur"}
	agent := &models.Agent{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		Email:        "ana@example.com",
		Role:         "agent",
		PasswordHash: string(hash),
	}

	h := NewAuthHandler(loginAgents{agent: agent}, loginTenants{tenant: tenant}, "secret", zap.NewNop())
	r := gin.New()
	r.POST("/v1/auth/login", h.Login)
	return r, agent
}

func login(t *testing.T, router *gin.Engine, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(gin.H{"email": email, "password": password})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	t.Parallel()

	router, agent := newLoginRouter(t, "hunter22")

	w := login(t, router, "ana@example.com", "hunter22")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token      string `json:"token"`
		TenantID   string `json:"tenant_id"`
		TenantName string `json:"tenant_name"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, agent.TenantID.String(), resp.TenantID)
	assert.Equal(t, "Concesionaria Sur", resp.TenantName)

	claims, err := auth.ParseToken(resp.Token, "secret")
	require.NoError(t, err)
	assert.Equal(t, agent.ID, claims.AgentID)
	assert.Equal(t, agent.TenantID, claims.TenantID)
}

func TestLoginBadCredentials(t *testing.T) {
	t.Parallel()

	router, _ := newLoginRouter(t, "hunter22")

	// Unknown email and wrong password get the same answer.
	wrongPassword := login(t, router, "ana@example.com", "nope")
	unknownEmail := login(t, router, "nobody@example.com", "hunter22")

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.JSONEq(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestLoginBindErrors(t *testing.T) {
	t.Parallel()

	router, _ := newLoginRouter(t, "hunter22")

	w := login(t, router, "not-an-email", "x")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = login(t, router, "ana@example.com", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
