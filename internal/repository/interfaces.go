package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dealerdesk/wainbox/internal/models"
)

// Every method is tenant-scoped: the tenant id comes from the verified
// request context (JWT claims or channel resolution), never from
// client-supplied fields. GetByID-style lookups return nil, nil when no
// row matches within the tenant; "exists elsewhere" is not a different
// answer.

// TenantRepository reads provisioned tenants.
type TenantRepository interface {
	GetByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)
}

// ChannelRepository maps phone_number_ids to tenants and back.
type ChannelRepository interface {
	// GetByPhoneNumberID resolves a webhook's metadata to its channel.
	// Not tenant-scoped: this lookup is what determines the tenant.
	GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Channel, error)

	// GetByTenant returns the tenant's outbound channel.
	GetByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Channel, error)
}

// AgentRepository handles inbox users.
type AgentRepository interface {
	GetByID(ctx context.Context, tenantID uuid.UUID, agentID uuid.UUID) (*models.Agent, error)

	// GetByEmail is global (login happens before a tenant is known).
	GetByEmail(ctx context.Context, email string) (*models.Agent, error)
}

// ContactRepository handles end customers.
type ContactRepository interface {
	// Upsert inserts or refreshes the contact for (tenant, phone) in one
	// atomic statement and returns the surviving row. Concurrent calls
	// for the same phone converge on one row.
	Upsert(ctx context.Context, tenantID uuid.UUID, phone, displayName string, seenAt time.Time) (*models.Contact, error)

	GetByID(ctx context.Context, tenantID uuid.UUID, contactID uuid.UUID) (*models.Contact, error)
}

// ConversationRepository handles threads and their counters. Counter
// changes are conditional writes in SQL, not read-modify-write, so
// concurrent webhook deliveries can't lose updates.
type ConversationRepository interface {
	// Ensure returns the conversation for (tenant, contact), creating it
	// if absent. Does not touch counters; RecordInbound does that, and
	// only for messages that actually inserted.
	Ensure(ctx context.Context, tenantID uuid.UUID, contactID uuid.UUID, seenAt time.Time) (*models.Conversation, error)

	GetByID(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID) (*models.Conversation, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Conversation, error)

	// RecordInbound bumps unread_count and advances last_message_at to
	// max(current, seenAt).
	RecordInbound(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, seenAt time.Time) error

	// TouchOutbound advances last_message_at only (successful sends).
	TouchOutbound(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, sentAt time.Time) error

	// MarkRead resets unread_count to zero (agent opened the thread).
	MarkRead(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID) error

	SetStatus(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, status string) error
	Assign(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, assigneeID *uuid.UUID) error
}

// MessageRepository handles message persistence and reconciliation.
type MessageRepository interface {
	// InsertInbound stores a webhook message. The second return is false
	// when (tenant, waMessageID) already exists: the dedup no-op for
	// redelivered webhooks.
	InsertInbound(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, waMessageID, msgType string, body *string, payload []byte, at time.Time) (*models.Message, bool, error)

	// InsertQueued stores an outbound message before the provider call.
	InsertQueued(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, msgType string, body *string, payload []byte) (*models.Message, error)

	// MarkSent attaches the provider id and moves queued→sent.
	MarkSent(ctx context.Context, tenantID uuid.UUID, messageID uuid.UUID, waMessageID string) error

	MarkFailed(ctx context.Context, tenantID uuid.UUID, messageID uuid.UUID) error

	// ApplyStatus sets the status of the message with this provider id,
	// last-write-wins. Returns the previous status and whether a row
	// matched; no match is the caller's no-op case.
	ApplyStatus(ctx context.Context, tenantID uuid.UUID, waMessageID, status string) (string, bool, error)

	// ListByConversation pages newest-first; a zero `before` means from
	// the top.
	ListByConversation(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, before time.Time, limit int) ([]models.Message, error)

	// SweepQueued marks outbound messages stuck in queued since before
	// the cutoff as failed, returning how many moved.
	SweepQueued(ctx context.Context, cutoff time.Time) (int64, error)
}
