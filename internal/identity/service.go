package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dealerdesk/wainbox/internal/models"
	"github.com/dealerdesk/wainbox/internal/repository"
)

// Service resolves (tenant, raw phone) into a contact and a conversation
// using atomic upserts. Both operations are safe to repeat and safe to
// race: the unique constraints on contacts(tenant_id, phone) and
// conversations(tenant_id, contact_id) guarantee one row each.
type Service struct {
	contacts      repository.ContactRepository
	conversations repository.ConversationRepository

	defaultCountryCode string
}

func NewService(contacts repository.ContactRepository, conversations repository.ConversationRepository, defaultCountryCode string) *Service {
	return &Service{
		contacts:           contacts,
		conversations:      conversations,
		defaultCountryCode: defaultCountryCode,
	}
}

// EnsureContact upserts the contact for a raw phone, refreshing
// last_seen_at when seenAt is newer.
func (s *Service) EnsureContact(ctx context.Context, tenantID uuid.UUID, phoneRaw, displayName string, seenAt time.Time) (*models.Contact, error) {
	phone := NormalizePhone(phoneRaw, s.defaultCountryCode)
	if phone == "" {
		return nil, fmt.Errorf("empty phone after normalization: %q", phoneRaw)
	}

	contact, err := s.contacts.Upsert(ctx, tenantID, phone, displayName, seenAt)
	if err != nil {
		return nil, fmt.Errorf("ensure contact: %w", err)
	}
	return contact, nil
}

// EnsureConversation returns the thread for a contact, creating it if
// this is the first message.
func (s *Service) EnsureConversation(ctx context.Context, tenantID uuid.UUID, contactID uuid.UUID, seenAt time.Time) (*models.Conversation, error) {
	conversation, err := s.conversations.Ensure(ctx, tenantID, contactID, seenAt)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	return conversation, nil
}
