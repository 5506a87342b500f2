package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealerdesk/wainbox/internal/models"
)

type ContactStore struct {
	pool *pgxpool.Pool
}

func NewContactStore(pool *pgxpool.Pool) *ContactStore {
	return &ContactStore{pool: pool}
}

// Upsert is a single INSERT ... ON CONFLICT ... RETURNING. One statement
// means no read-after-write window: two webhooks racing on the same phone
// both land on the same row and both get its id back.
func (s *ContactStore) Upsert(ctx context.Context, tenantID uuid.UUID, phone, displayName string, seenAt time.Time) (*models.Contact, error) {
	query := `
		INSERT INTO contacts (tenant_id, phone, display_name, last_seen_at, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (tenant_id, phone) DO UPDATE SET
			last_seen_at = GREATEST(contacts.last_seen_at, EXCLUDED.last_seen_at),
			display_name = CASE
				WHEN EXCLUDED.display_name <> '' THEN EXCLUDED.display_name
				ELSE contacts.display_name
			END
		RETURNING id, tenant_id, phone, display_name, last_seen_at, created_at`

	var c models.Contact
	err := s.pool.QueryRow(ctx, query, tenantID, phone, displayName, seenAt).Scan(
		&c.ID,
		&c.TenantID,
		&c.Phone,
		&c.DisplayName,
		&c.LastSeenAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert contact: %w", err)
	}
	return &c, nil
}

func (s *ContactStore) GetByID(ctx context.Context, tenantID uuid.UUID, contactID uuid.UUID) (*models.Contact, error) {
	query := `
		SELECT id, tenant_id, phone, display_name, last_seen_at, created_at
		FROM contacts
		WHERE id = $1 AND tenant_id = $2`

	var c models.Contact
	err := s.pool.QueryRow(ctx, query, contactID, tenantID).Scan(
		&c.ID,
		&c.TenantID,
		&c.Phone,
		&c.DisplayName,
		&c.LastSeenAt,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &c, nil
}
