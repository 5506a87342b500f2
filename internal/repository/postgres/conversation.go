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

type ConversationStore struct {
	pool *pgxpool.Pool
}

func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

const conversationColumns = `id, tenant_id, contact_id, status, assignee_id, unread_count, last_message_at, created_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var cv models.Conversation
	err := row.Scan(
		&cv.ID,
		&cv.TenantID,
		&cv.ContactID,
		&cv.Status,
		&cv.AssigneeID,
		&cv.UnreadCount,
		&cv.LastMessageAt,
		&cv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cv, nil
}

// Ensure returns the (tenant, contact) conversation, inserting it if
// missing. The ON CONFLICT arm is a no-op update so RETURNING yields
// the existing row; the unique constraint does the dedup, not a
// select-then-insert in application code.
func (s *ConversationStore) Ensure(ctx context.Context, tenantID uuid.UUID, contactID uuid.UUID, seenAt time.Time) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (tenant_id, contact_id, status, unread_count, last_message_at, created_at)
		VALUES ($1, $2, 'open', 0, $3, now())
		ON CONFLICT (tenant_id, contact_id) DO UPDATE SET
			contact_id = EXCLUDED.contact_id
		RETURNING ` + conversationColumns

	cv, err := scanConversation(s.pool.QueryRow(ctx, query, tenantID, contactID, seenAt))
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	return cv, nil
}

func (s *ConversationStore) GetByID(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1 AND tenant_id = $2`

	cv, err := scanConversation(s.pool.QueryRow(ctx, query, conversationID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return cv, nil
}

func (s *ConversationStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE tenant_id = $1
		ORDER BY last_message_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		cv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, *cv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	return conversations, nil
}

// RecordInbound applies the counter effects of one newly stored inbound
// message. The increment happens in SQL so concurrent webhook deliveries
// can't lose updates, and GREATEST keeps last_message_at monotonic when
// events arrive out of order.
func (s *ConversationStore) RecordInbound(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, seenAt time.Time) error {
	query := `
		UPDATE conversations
		SET unread_count = unread_count + 1,
		    last_message_at = GREATEST(last_message_at, $3)
		WHERE id = $1 AND tenant_id = $2`

	_, err := s.pool.Exec(ctx, query, conversationID, tenantID, seenAt)
	if err != nil {
		return fmt.Errorf("record inbound: %w", err)
	}
	return nil
}

func (s *ConversationStore) TouchOutbound(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, sentAt time.Time) error {
	query := `
		UPDATE conversations
		SET last_message_at = GREATEST(last_message_at, $3)
		WHERE id = $1 AND tenant_id = $2`

	_, err := s.pool.Exec(ctx, query, conversationID, tenantID, sentAt)
	if err != nil {
		return fmt.Errorf("touch outbound: %w", err)
	}
	return nil
}

func (s *ConversationStore) MarkRead(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID) error {
	query := `
		UPDATE conversations
		SET unread_count = 0
		WHERE id = $1 AND tenant_id = $2`

	_, err := s.pool.Exec(ctx, query, conversationID, tenantID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *ConversationStore) SetStatus(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, status string) error {
	query := `
		UPDATE conversations
		SET status = $3
		WHERE id = $1 AND tenant_id = $2`

	_, err := s.pool.Exec(ctx, query, conversationID, tenantID, status)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

func (s *ConversationStore) Assign(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, assigneeID *uuid.UUID) error {
	query := `
		UPDATE conversations
		SET assignee_id = $3
		WHERE id = $1 AND tenant_id = $2`

	_, err := s.pool.Exec(ctx, query, conversationID, tenantID, assigneeID)
	if err != nil {
		return fmt.Errorf("assign conversation: %w", err)
	}
	return nil
}
