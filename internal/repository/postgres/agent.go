package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealerdesk/wainbox/internal/models"
)

type AgentStore struct {
	pool *pgxpool.Pool
}

func NewAgentStore(pool *pgxpool.Pool) *AgentStore {
	return &AgentStore{pool: pool}
}

func (s *AgentStore) GetByID(ctx context.Context, tenantID uuid.UUID, agentID uuid.UUID) (*models.Agent, error) {
	query := `
		SELECT id, tenant_id, email, display_name, role, password_hash, created_at
		FROM agents
		WHERE id = $1 AND tenant_id = $2`

	var a models.Agent
	err := s.pool.QueryRow(ctx, query, agentID, tenantID).Scan(
		&a.ID,
		&a.TenantID,
		&a.Email,
		&a.DisplayName,
		&a.Role,
		&a.PasswordHash,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &a, nil
}

// GetByEmail looks up an agent globally: login starts from an email and
// the tenant comes out of the row.
func (s *AgentStore) GetByEmail(ctx context.Context, email string) (*models.Agent, error) {
	query := `
		SELECT id, tenant_id, email, display_name, role, password_hash, created_at
		FROM agents
		WHERE email = $1`

	var a models.Agent
	err := s.pool.QueryRow(ctx, query, email).Scan(
		&a.ID,
		&a.TenantID,
		&a.Email,
		&a.DisplayName,
		&a.Role,
		&a.PasswordHash,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get agent by email: %w", err)
	}
	return &a, nil
}
