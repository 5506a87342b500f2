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

type ChannelStore struct {
	pool *pgxpool.Pool
}

func NewChannelStore(pool *pgxpool.Pool) *ChannelStore {
	return &ChannelStore{pool: pool}
}

func (s *ChannelStore) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Channel, error) {
	query := `
		SELECT id, tenant_id, phone_number_id, display_phone, created_at
		FROM channels
		WHERE phone_number_id = $1`

	var ch models.Channel
	err := s.pool.QueryRow(ctx, query, phoneNumberID).Scan(
		&ch.ID,
		&ch.TenantID,
		&ch.PhoneNumberID,
		&ch.DisplayPhone,
		&ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel by phone_number_id: %w", err)
	}
	return &ch, nil
}

func (s *ChannelStore) GetByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Channel, error) {
	// A tenant normally has one channel; if several exist, the oldest is
	// the sending identity.
	query := `
		SELECT id, tenant_id, phone_number_id, display_phone, created_at
		FROM channels
		WHERE tenant_id = $1
		ORDER BY created_at
		LIMIT 1`

	var ch models.Channel
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(
		&ch.ID,
		&ch.TenantID,
		&ch.PhoneNumberID,
		&ch.DisplayPhone,
		&ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel by tenant: %w", err)
	}
	return &ch, nil
}
