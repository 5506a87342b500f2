package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the top-level isolation boundary (a dealership).
// Every contact, conversation, and message belongs to exactly one tenant.
// Tenants are provisioned out-of-band; this service only reads them.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Channel maps a WhatsApp phone_number_id to its owning tenant. Webhook
// metadata carries the phone_number_id; the channel row is how we know
// whose inbox an event belongs to.
type Channel struct {
	ID            uuid.UUID `json:"id"`
	TenantID      uuid.UUID `json:"tenant_id"`
	PhoneNumberID string    `json:"phone_number_id"`
	DisplayPhone  string    `json:"display_phone"`
	CreatedAt     time.Time `json:"created_at"`
}

// Agent is a human inbox user within a tenant.
type Agent struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Contact is an end customer, unique per (tenant, phone). Phone is stored
// normalized to E.164 so two spellings of the same number converge on one
// row.
type Contact struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Phone       string    `json:"phone"`
	DisplayName string    `json:"display_name"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Conversation status values.
const (
	ConversationOpen    = "open"
	ConversationSnoozed = "snoozed"
	ConversationClosed  = "closed"
)

// Conversation is the thread between a tenant and one contact; at most
// one row per (tenant, contact), enforced by a unique constraint.
type Conversation struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	ContactID     uuid.UUID  `json:"contact_id"`
	Status        string     `json:"status"`
	AssigneeID    *uuid.UUID `json:"assignee_id"`
	UnreadCount   int        `json:"unread_count"`
	LastMessageAt time.Time  `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Message direction.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Message type tags.
const (
	MessageTypeText     = "text"
	MessageTypeTemplate = "template"
	MessageTypeFlow     = "flow"
	MessageTypeOther    = "other"
)

// Message status values. Outbound messages walk queued → sent → delivered
// → read, or land in failed. Inbound messages are stored as delivered.
const (
	StatusQueued    = "queued"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Message is a single inbound or outbound message. WAMessageID is the
// provider's id: present on every inbound message, attached to outbound
// messages once the send call succeeds. It is the dedup and status
// reconciliation key, unique per tenant where non-null.
type Message struct {
	ID             uuid.UUID `json:"id"`
	TenantID       uuid.UUID `json:"tenant_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	WAMessageID    *string   `json:"wa_message_id"`
	Direction      string    `json:"direction"`
	Type           string    `json:"type"`
	Body           *string   `json:"body"`
	Status         string    `json:"status"`
	Payload        []byte    `json:"payload,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
