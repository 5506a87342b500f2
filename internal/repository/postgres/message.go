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

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `id, tenant_id, conversation_id, wa_message_id, direction, type, body, status, payload, created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.ConversationID,
		&m.WAMessageID,
		&m.Direction,
		&m.Type,
		&m.Body,
		&m.Status,
		&m.Payload,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertInbound relies on the partial unique index on
// (tenant_id, wa_message_id): a redelivered webhook hits DO NOTHING,
// RETURNING yields no row, and we report inserted=false so the caller
// skips the unread increment.
func (s *MessageStore) InsertInbound(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, waMessageID, msgType string, body *string, payload []byte, at time.Time) (*models.Message, bool, error) {
	query := `
		INSERT INTO messages (tenant_id, conversation_id, wa_message_id, direction, type, body, status, payload, created_at)
		VALUES ($1, $2, $3, 'in', $4, $5, 'delivered', $6, $7)
		ON CONFLICT (tenant_id, wa_message_id) WHERE wa_message_id IS NOT NULL DO NOTHING
		RETURNING ` + messageColumns

	m, err := scanMessage(s.pool.QueryRow(ctx, query, tenantID, conversationID, waMessageID, msgType, body, payload, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("insert inbound message: %w", err)
	}
	return m, true, nil
}

func (s *MessageStore) InsertQueued(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, msgType string, body *string, payload []byte) (*models.Message, error) {
	query := `
		INSERT INTO messages (tenant_id, conversation_id, direction, type, body, status, payload, created_at)
		VALUES ($1, $2, 'out', $3, $4, 'queued', $5, now())
		RETURNING ` + messageColumns

	m, err := scanMessage(s.pool.QueryRow(ctx, query, tenantID, conversationID, msgType, body, payload))
	if err != nil {
		return nil, fmt.Errorf("insert queued message: %w", err)
	}
	return m, nil
}

func (s *MessageStore) MarkSent(ctx context.Context, tenantID uuid.UUID, messageID uuid.UUID, waMessageID string) error {
	query := `
		UPDATE messages
		SET status = 'sent', wa_message_id = $3
		WHERE id = $1 AND tenant_id = $2`

	_, err := s.pool.Exec(ctx, query, messageID, tenantID, waMessageID)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

func (s *MessageStore) MarkFailed(ctx context.Context, tenantID uuid.UUID, messageID uuid.UUID) error {
	query := `
		UPDATE messages
		SET status = 'failed'
		WHERE id = $1 AND tenant_id = $2`

	_, err := s.pool.Exec(ctx, query, messageID, tenantID)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// ApplyStatus is last-write-wins: provider status events carry
// no ordering guarantee, so we store what we were told and hand the
// previous value back for the caller to log regressions.
func (s *MessageStore) ApplyStatus(ctx context.Context, tenantID uuid.UUID, waMessageID, status string) (string, bool, error) {
	query := `
		WITH prev AS (
			SELECT id, status
			FROM messages
			WHERE tenant_id = $1 AND wa_message_id = $2
		)
		UPDATE messages m
		SET status = $3
		FROM prev
		WHERE m.id = prev.id
		RETURNING prev.status`

	var previous string
	err := s.pool.QueryRow(ctx, query, tenantID, waMessageID, status).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("apply status: %w", err)
	}
	return previous, true, nil
}

func (s *MessageStore) ListByConversation(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, before time.Time, limit int) ([]models.Message, error) {
	// Cursor pagination on created_at: zero `before` means first page
	// (newest messages).
	var query string
	var args []any

	if !before.IsZero() {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE tenant_id = $1 AND conversation_id = $2 AND created_at < $3
			ORDER BY created_at DESC
			LIMIT $4`
		args = []any{tenantID, conversationID, before, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE tenant_id = $1 AND conversation_id = $2
			ORDER BY created_at DESC
			LIMIT $3`
		args = []any{tenantID, conversationID, limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (s *MessageStore) SweepQueued(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE messages
		SET status = 'failed'
		WHERE direction = 'out' AND status = 'queued' AND created_at < $1`

	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep queued: %w", err)
	}
	return tag.RowsAffected(), nil
}
