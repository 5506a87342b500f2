// Package service holds the outbound send coordinator and the queued
// sweeper.
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/core"
	"github.com/dealerdesk/wainbox/internal/models"
	"github.com/dealerdesk/wainbox/internal/observ"
	"github.com/dealerdesk/wainbox/internal/repository"
	"github.com/dealerdesk/wainbox/internal/wa"
)

const maxTextLength = 4000

// SendResult is what the API hands back to the client: the local row id
// for optimistic reconciliation, the provider id once known, and the
// final status of this attempt.
type SendResult struct {
	Message     *models.Message
	WAMessageID string
	Status      string
}

// Outbound coordinates the queued → sent/failed state machine. The
// queued insert, the provider call, and the row patch are deliberately
// not one transaction: the queued row must be visible
// before the provider call returns, and a crash in between is closed by
// the sweeper, not hidden.
type Outbound struct {
	messages repository.MessageRepository
	convs    repository.ConversationRepository
	contacts repository.ContactRepository
	channels repository.ChannelRepository
	sender   wa.Sender
	clock    Clock
	logger   *zap.Logger
}

func NewOutbound(
	messages repository.MessageRepository,
	convs repository.ConversationRepository,
	contacts repository.ContactRepository,
	channels repository.ChannelRepository,
	sender wa.Sender,
	clock Clock,
	logger *zap.Logger,
) *Outbound {
	return &Outbound{
		messages: messages,
		convs:    convs,
		contacts: contacts,
		channels: channels,
		sender:   sender,
		clock:    clock,
		logger:   logger,
	}
}

// SendText sends a free-form text message into a conversation.
func (o *Outbound) SendText(ctx context.Context, tenantID, actorID, conversationID uuid.UUID, text string) (*SendResult, error) {
	if text == "" || len(text) > maxTextLength {
		return nil, fmt.Errorf("%w: text must be 1..%d characters", core.ErrValidation, maxTextLength)
	}

	return o.send(ctx, tenantID, conversationID, models.MessageTypeText, &text,
		func(ctx context.Context, phoneNumberID, to string) (string, error) {
			return o.sender.SendText(ctx, phoneNumberID, to, text)
		})
}

// SendTemplate sends a pre-approved template.
func (o *Outbound) SendTemplate(ctx context.Context, tenantID, actorID, conversationID uuid.UUID, templateName, language string, bodyVars []string) (*SendResult, error) {
	if templateName == "" || language == "" {
		return nil, fmt.Errorf("%w: template_name and language are required", core.ErrValidation)
	}

	body := templateBody(templateName, bodyVars)
	return o.send(ctx, tenantID, conversationID, models.MessageTypeTemplate, &body,
		func(ctx context.Context, phoneNumberID, to string) (string, error) {
			return o.sender.SendTemplate(ctx, phoneNumberID, to, templateName, language, bodyVars)
		})
}

// SendFlow sends an interactive flow message.
func (o *Outbound) SendFlow(ctx context.Context, tenantID, actorID, conversationID uuid.UUID, flowID, ctaText, bodyText string) (*SendResult, error) {
	if flowID == "" || ctaText == "" {
		return nil, fmt.Errorf("%w: flow_id and cta_text are required", core.ErrValidation)
	}

	return o.send(ctx, tenantID, conversationID, models.MessageTypeFlow, &bodyText,
		func(ctx context.Context, phoneNumberID, to string) (string, error) {
			return o.sender.SendFlow(ctx, phoneNumberID, to, flowID, ctaText, bodyText)
		})
}

type providerCall func(ctx context.Context, phoneNumberID, to string) (string, error)

func (o *Outbound) send(ctx context.Context, tenantID, conversationID uuid.UUID, msgType string, body *string, call providerCall) (*SendResult, error) {
	// Tenant isolation: the conversation lookup is scoped by tenant, so
	// a foreign conversation id is indistinguishable from a missing one.
	conversation, err := o.convs.GetByID(ctx, tenantID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conversation == nil {
		return nil, fmt.Errorf("%w: conversation", core.ErrNotFound)
	}

	contact, err := o.contacts.GetByID(ctx, tenantID, conversation.ContactID)
	if err != nil {
		return nil, fmt.Errorf("load contact: %w", err)
	}
	if contact == nil {
		return nil, fmt.Errorf("%w: contact", core.ErrNotFound)
	}

	channel, err := o.channels.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load channel: %w", err)
	}
	if channel == nil {
		return nil, core.ErrChannelNotConfigured
	}

	payload, _ := json.Marshal(map[string]string{"to": contact.Phone, "type": msgType})

	// The queued row goes in before the provider call so the client's
	// optimistic message has a server id to reconcile against.
	message, err := o.messages.InsertQueued(ctx, tenantID, conversationID, msgType, body, payload)
	if err != nil {
		return nil, fmt.Errorf("insert queued message: %w", err)
	}

	waMessageID, sendErr := call(ctx, channel.PhoneNumberID, contact.Phone)
	if sendErr != nil {
		observ.OutboundSendsTotal.WithLabelValues(msgType, "failed").Inc()
		if markErr := o.messages.MarkFailed(ctx, tenantID, message.ID); markErr != nil {
			o.logger.Error("failed to mark message failed",
				zap.String("message_id", message.ID.String()),
				zap.Error(markErr),
			)
		}
		message.Status = models.StatusFailed
		return &SendResult{Message: message, Status: models.StatusFailed}, sendErr
	}

	if err := o.messages.MarkSent(ctx, tenantID, message.ID, waMessageID); err != nil {
		// The provider accepted the send; losing the patch leaves the
		// row queued until a status event or the sweeper corrects it.
		o.logger.Error("failed to mark message sent",
			zap.String("message_id", message.ID.String()),
			zap.String("wa_message_id", waMessageID),
			zap.Error(err),
		)
	}

	now := o.clock.Now()
	if err := o.convs.TouchOutbound(ctx, tenantID, conversationID, now); err != nil {
		o.logger.Error("failed to advance last_message_at",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err),
		)
	}

	observ.OutboundSendsTotal.WithLabelValues(msgType, "sent").Inc()

	message.Status = models.StatusSent
	message.WAMessageID = &waMessageID
	return &SendResult{Message: message, WAMessageID: waMessageID, Status: models.StatusSent}, nil
}

func templateBody(name string, vars []string) string {
	if len(vars) == 0 {
		return fmt.Sprintf("[template:%s]", name)
	}
	b, _ := json.Marshal(vars)
	return fmt.Sprintf("[template:%s] %s", name, b)
}
