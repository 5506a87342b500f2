package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/core"
	"github.com/dealerdesk/wainbox/internal/models"
)

type fakeStore struct {
	conversation *models.Conversation
	contact      *models.Contact
	channel      *models.Channel

	queued     []*models.Message
	sentIDs    map[uuid.UUID]string
	failedIDs  map[uuid.UUID]bool
	touched    []time.Time
	sweepCalls []time.Time
	sweepCount int64
}

func newFakeStore(tenantID uuid.UUID) *fakeStore {
	contactID := uuid.New()
	return &fakeStore{
		conversation: &models.Conversation{
			ID:        uuid.New(),
			TenantID:  tenantID,
			ContactID: contactID,
			Status:    models.ConversationOpen,
		},
		contact: &models.Contact{
			ID:       contactID,
			TenantID: tenantID,
			Phone:    "+5491122334455",
		},
		channel: &models.Channel{
			ID:            uuid.New(),
			TenantID:      tenantID,
			PhoneNumberID: "PN1",
		},
		sentIDs:   make(map[uuid.UUID]string),
		failedIDs: make(map[uuid.UUID]bool),
	}
}

// --- ConversationRepository ---

func (f *fakeStore) Ensure(ctx context.Context, tenantID uuid.UUID, contactID uuid.UUID, seenAt time.Time) (*models.Conversation, error) {
	return f.conversation, nil
}

func (f *fakeStore) GetByID(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID) (*models.Conversation, error) {
	if f.conversation != nil && f.conversation.ID == conversationID && f.conversation.TenantID == tenantID {
		return f.conversation, nil
	}
	return nil, nil
}

func (f *fakeStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.Conversation, error) {
	return nil, nil
}

func (f *fakeStore) RecordInbound(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, seenAt time.Time) error {
	return nil
}

func (f *fakeStore) TouchOutbound(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, sentAt time.Time) error {
	f.touched = append(f.touched, sentAt)
	return nil
}

func (f *fakeStore) MarkRead(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID) error {
	return nil
}

func (f *fakeStore) SetStatus(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, status string) error {
	return nil
}

func (f *fakeStore) Assign(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, assigneeID *uuid.UUID) error {
	return nil
}

// --- MessageRepository ---

func (f *fakeStore) InsertInbound(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, waMessageID, msgType string, body *string, payload []byte, at time.Time) (*models.Message, bool, error) {
	return nil, false, errors.New("not used")
}

func (f *fakeStore) InsertQueued(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, msgType string, body *string, payload []byte) (*models.Message, error) {
	m := &models.Message{
		ID:             uuid.New(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Direction:      models.DirectionOut,
		Type:           msgType,
		Body:           body,
		Status:         models.StatusQueued,
		Payload:        payload,
		CreatedAt:      time.Now().UTC(),
	}
	f.queued = append(f.queued, m)
	return m, nil
}

func (f *fakeStore) MarkSent(ctx context.Context, tenantID uuid.UUID, messageID uuid.UUID, waMessageID string) error {
	f.sentIDs[messageID] = waMessageID
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, tenantID uuid.UUID, messageID uuid.UUID) error {
	f.failedIDs[messageID] = true
	return nil
}

func (f *fakeStore) ApplyStatus(ctx context.Context, tenantID uuid.UUID, waMessageID, status string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeStore) ListByConversation(ctx context.Context, tenantID uuid.UUID, conversationID uuid.UUID, before time.Time, limit int) ([]models.Message, error) {
	return nil, nil
}

func (f *fakeStore) SweepQueued(ctx context.Context, cutoff time.Time) (int64, error) {
	f.sweepCalls = append(f.sweepCalls, cutoff)
	return f.sweepCount, nil
}

// contactStore adapts fakeStore to ContactRepository (GetByID collides
// with the conversation method, so contacts get their own wrapper).
type contactStore struct{ f *fakeStore }

func (c contactStore) Upsert(ctx context.Context, tenantID uuid.UUID, phone, displayName string, seenAt time.Time) (*models.Contact, error) {
	return c.f.contact, nil
}

func (c contactStore) GetByID(ctx context.Context, tenantID uuid.UUID, contactID uuid.UUID) (*models.Contact, error) {
	if c.f.contact != nil && c.f.contact.ID == contactID && c.f.contact.TenantID == tenantID {
		return c.f.contact, nil
	}
	return nil, nil
}

// channelStore adapts fakeStore to ChannelRepository.
type channelStore struct{ f *fakeStore }

func (c channelStore) GetByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Channel, error) {
	return nil, nil
}

func (c channelStore) GetByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Channel, error) {
	if c.f.channel != nil && c.f.channel.TenantID == tenantID {
		return c.f.channel, nil
	}
	return nil, nil
}

type fakeSender struct {
	id    string
	err   error
	calls int
	to    string
	pnid  string
}

func (s *fakeSender) SendText(ctx context.Context, phoneNumberID, to, body string) (string, error) {
	s.calls++
	s.pnid = phoneNumberID
	s.to = to
	return s.id, s.err
}

func (s *fakeSender) SendTemplate(ctx context.Context, phoneNumberID, to, templateName, language string, bodyVars []string) (string, error) {
	s.calls++
	return s.id, s.err
}

func (s *fakeSender) SendFlow(ctx context.Context, phoneNumberID, to, flowID, ctaText, bodyText string) (string, error) {
	s.calls++
	return s.id, s.err
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newOutbound(f *fakeStore, sender *fakeSender, now time.Time) *Outbound {
	return NewOutbound(f, f, contactStore{f}, channelStore{f}, sender, fixedClock{now: now}, zap.NewNop())
}

func TestSendTextHappyPath(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	f := newFakeStore(tenantID)
	sender := &fakeSender{id: "wamid.OUT1"}
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	outbound := newOutbound(f, sender, now)

	result, err := outbound.SendText(context.Background(), tenantID, uuid.New(), f.conversation.ID, "hola!")
	require.NoError(t, err)

	assert.Equal(t, models.StatusSent, result.Status)
	assert.Equal(t, "wamid.OUT1", result.WAMessageID)

	// The queued row went in before the provider call and was patched
	// to sent with the provider id attached.
	require.Len(t, f.queued, 1)
	assert.Equal(t, "wamid.OUT1", f.sentIDs[f.queued[0].ID])
	assert.Empty(t, f.failedIDs)

	// last_message_at advanced on the sent path.
	require.Len(t, f.touched, 1)
	assert.Equal(t, now, f.touched[0])

	assert.Equal(t, "PN1", sender.pnid)
	assert.Equal(t, "+5491122334455", sender.to)
}

func TestSendTextProviderFailure(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	f := newFakeStore(tenantID)
	sender := &fakeSender{err: &core.ProviderSendError{HTTPStatus: 500, Body: `{"error":"boom"}`}}
	outbound := newOutbound(f, sender, time.Now().UTC())

	result, err := outbound.SendText(context.Background(), tenantID, uuid.New(), f.conversation.ID, "hola!")

	var providerErr *core.ProviderSendError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, 500, providerErr.HTTPStatus)

	// queued → failed; provider id stays null; last_message_at untouched.
	require.NotNil(t, result)
	assert.Equal(t, models.StatusFailed, result.Status)
	require.Len(t, f.queued, 1)
	assert.True(t, f.failedIDs[f.queued[0].ID])
	assert.Empty(t, f.sentIDs)
	assert.Nil(t, result.Message.WAMessageID)
	assert.Empty(t, f.touched)
}

func TestSendTextValidation(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	f := newFakeStore(tenantID)
	outbound := newOutbound(f, &fakeSender{id: "x"}, time.Now().UTC())

	_, err := outbound.SendText(context.Background(), tenantID, uuid.New(), f.conversation.ID, "")
	assert.ErrorIs(t, err, core.ErrValidation)

	long := make([]byte, maxTextLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = outbound.SendText(context.Background(), tenantID, uuid.New(), f.conversation.ID, string(long))
	assert.ErrorIs(t, err, core.ErrValidation)

	// Nothing persisted, nothing sent.
	assert.Empty(t, f.queued)
}

func TestSendTextTenantIsolation(t *testing.T) {
	t.Parallel()

	tenantA := uuid.New()
	tenantB := uuid.New()
	f := newFakeStore(tenantB) // conversation belongs to tenant B
	sender := &fakeSender{id: "x"}
	outbound := newOutbound(f, sender, time.Now().UTC())

	// Authenticated as tenant A, referencing tenant B's conversation:
	// NotFound, never a hint that the conversation exists.
	_, err := outbound.SendText(context.Background(), tenantA, uuid.New(), f.conversation.ID, "hola")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Zero(t, sender.calls)
	assert.Empty(t, f.queued)
}

func TestSendTextChannelNotConfigured(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	f := newFakeStore(tenantID)
	f.channel = nil
	sender := &fakeSender{id: "x"}
	outbound := newOutbound(f, sender, time.Now().UTC())

	_, err := outbound.SendText(context.Background(), tenantID, uuid.New(), f.conversation.ID, "hola")
	assert.ErrorIs(t, err, core.ErrChannelNotConfigured)
	assert.Zero(t, sender.calls)
	assert.Empty(t, f.queued)
}

func TestSendTemplateAndFlowShareTheStateMachine(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	f := newFakeStore(tenantID)
	sender := &fakeSender{id: "wamid.T1"}
	outbound := newOutbound(f, sender, time.Now().UTC())

	result, err := outbound.SendTemplate(context.Background(), tenantID, uuid.New(), f.conversation.ID, "welcome", "es_AR", []string{"Juan"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, result.Status)
	assert.Equal(t, models.MessageTypeTemplate, result.Message.Type)

	result, err = outbound.SendFlow(context.Background(), tenantID, uuid.New(), f.conversation.ID, "flow-1", "Book now", "Pick a slot")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, result.Status)
	assert.Equal(t, models.MessageTypeFlow, result.Message.Type)

	_, err = outbound.SendTemplate(context.Background(), tenantID, uuid.New(), f.conversation.ID, "", "es_AR", nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = outbound.SendFlow(context.Background(), tenantID, uuid.New(), f.conversation.ID, "", "cta", "body")
	assert.ErrorIs(t, err, core.ErrValidation)
}
