package webhook

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/identity"
	"github.com/dealerdesk/wainbox/internal/models"
	"github.com/dealerdesk/wainbox/internal/observ"
	"github.com/dealerdesk/wainbox/internal/repository"
	"github.com/dealerdesk/wainbox/internal/wa"
)

// Notifier pushes inbox events to connected agents. The processor only
// needs fire-and-forget semantics; the stream hub implements this.
type Notifier interface {
	NotifyInbound(tenantID uuid.UUID, conversation *models.Conversation, message *models.Message)
	NotifyStatus(tenantID uuid.UUID, waMessageID, status string)
}

// Result summarizes one webhook delivery. Entries are independent units:
// a failing entry lands in Failed and never aborts the rest.
type Result struct {
	Stored     int
	Duplicates int
	Statuses   int
	Skipped    int
	Failed     int
}

// Processor applies webhook deliveries to persisted inbox state.
type Processor struct {
	resolver *identity.TenantResolver
	ident    *identity.Service
	messages repository.MessageRepository
	convs    repository.ConversationRepository
	notifier Notifier
	logger   *zap.Logger
}

func NewProcessor(
	resolver *identity.TenantResolver,
	ident *identity.Service,
	messages repository.MessageRepository,
	convs repository.ConversationRepository,
	notifier Notifier,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		resolver: resolver,
		ident:    ident,
		messages: messages,
		convs:    convs,
		notifier: notifier,
		logger:   logger,
	}
}

// Handle processes a raw webhook body. It never returns an error: by the
// time the payload parses, every downstream failure is logged and
// swallowed, because any non-2xx makes the provider retry the delivery
// forever. An unparsable body is also acknowledged; retrying it can't
// help.
func (p *Processor) Handle(ctx context.Context, rawBody []byte) Result {
	var payload wa.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		p.logger.Warn("unparsable webhook payload", zap.Error(err))
		return Result{Failed: 1}
	}

	var res Result
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			p.handleChange(ctx, change.Value, &res)
		}
	}
	return res
}

func (p *Processor) handleChange(ctx context.Context, value wa.ChangeValue, res *Result) {
	tenantID, err := p.resolver.Resolve(ctx, value.Metadata.PhoneNumberID)
	if err != nil {
		p.logger.Error("tenant resolution failed",
			zap.String("phone_number_id", value.Metadata.PhoneNumberID),
			zap.Error(err),
		)
		res.Failed += len(value.Messages) + len(value.Statuses)
		observ.WebhookEventsTotal.WithLabelValues("message", "error").Add(float64(len(value.Messages)))
		observ.WebhookEventsTotal.WithLabelValues("status", "error").Add(float64(len(value.Statuses)))
		return
	}

	names := profileNames(value.Contacts)

	for _, msg := range value.Messages {
		outcome := p.handleMessage(ctx, tenantID, msg, names[msg.From])
		observ.WebhookEventsTotal.WithLabelValues("message", outcome).Inc()
		switch outcome {
		case "ok":
			res.Stored++
		case "duplicate":
			res.Duplicates++
		case "skipped":
			res.Skipped++
		default:
			res.Failed++
		}
	}

	for _, st := range value.Statuses {
		outcome := p.handleStatus(ctx, tenantID, st)
		observ.WebhookEventsTotal.WithLabelValues("status", outcome).Inc()
		if outcome == "error" {
			res.Failed++
		} else {
			res.Statuses++
		}
	}
}

func (p *Processor) handleMessage(ctx context.Context, tenantID uuid.UUID, msg wa.InboundMessage, profileName string) string {
	if msg.From == "" || msg.ID == "" {
		p.logger.Warn("inbound message missing from or id, skipping",
			zap.String("wa_message_id", msg.ID),
		)
		return "skipped"
	}

	seenAt := parseTimestamp(msg.Timestamp)

	contact, err := p.ident.EnsureContact(ctx, tenantID, msg.From, profileName, seenAt)
	if err != nil {
		p.logger.Error("contact upsert failed", zap.String("from", msg.From), zap.Error(err))
		return "error"
	}

	conversation, err := p.ident.EnsureConversation(ctx, tenantID, contact.ID, seenAt)
	if err != nil {
		p.logger.Error("conversation upsert failed", zap.String("contact_id", contact.ID.String()), zap.Error(err))
		return "error"
	}

	msgType, body := classify(msg)
	payload, _ := json.Marshal(msg)

	stored, inserted, err := p.messages.InsertInbound(ctx, tenantID, conversation.ID, msg.ID, msgType, body, payload, seenAt)
	if err != nil {
		p.logger.Error("message insert failed", zap.String("wa_message_id", msg.ID), zap.Error(err))
		return "error"
	}
	if !inserted {
		// Redelivery. The row already exists; counters were bumped the
		// first time around, so nothing else to do.
		p.logger.Debug("duplicate inbound message", zap.String("wa_message_id", msg.ID))
		return "duplicate"
	}

	if err := p.convs.RecordInbound(ctx, tenantID, conversation.ID, seenAt); err != nil {
		p.logger.Error("unread counter update failed",
			zap.String("conversation_id", conversation.ID.String()),
			zap.Error(err),
		)
		// The message is stored; the counter is off by one until the
		// next read reset. Not worth failing the entry over.
	}

	if p.notifier != nil {
		p.notifier.NotifyInbound(tenantID, conversation, stored)
	}
	return "ok"
}

func (p *Processor) handleStatus(ctx context.Context, tenantID uuid.UUID, st wa.StatusUpdate) string {
	if st.ID == "" {
		return "skipped"
	}

	status := MapProviderStatus(st.Status)

	previous, found, err := p.messages.ApplyStatus(ctx, tenantID, st.ID, status)
	if err != nil {
		p.logger.Error("status update failed", zap.String("wa_message_id", st.ID), zap.Error(err))
		return "error"
	}
	if !found {
		// Status for a message we haven't stored yet; the insert and
		// the status can race across deliveries. Dropping it is fine.
		p.logger.Debug("status for unknown message", zap.String("wa_message_id", st.ID))
		return "unknown"
	}

	if statusRank(status) < statusRank(previous) {
		p.logger.Warn("status moved backward",
			zap.String("wa_message_id", st.ID),
			zap.String("from", previous),
			zap.String("to", status),
		)
	}

	if p.notifier != nil {
		p.notifier.NotifyStatus(tenantID, st.ID, status)
	}
	return "ok"
}

// MapProviderStatus translates the provider's status vocabulary to ours.
// Unknown values map to queued rather than erroring; a new provider
// status must not break reconciliation.
func MapProviderStatus(s string) string {
	switch s {
	case "sent":
		return models.StatusSent
	case "delivered":
		return models.StatusDelivered
	case "read":
		return models.StatusRead
	case "failed":
		return models.StatusFailed
	default:
		return models.StatusQueued
	}
}

func statusRank(s string) int {
	switch s {
	case models.StatusQueued:
		return 0
	case models.StatusSent:
		return 1
	case models.StatusDelivered:
		return 2
	case models.StatusRead:
		return 3
	case models.StatusFailed:
		return 4
	default:
		return 0
	}
}

func classify(msg wa.InboundMessage) (string, *string) {
	if msg.Type == "text" && msg.Text != nil {
		body := msg.Text.Body
		return models.MessageTypeText, &body
	}
	if msg.Type == "" {
		return models.MessageTypeOther, nil
	}
	return msg.Type, nil
}

func profileNames(contacts []wa.ContactInfo) map[string]string {
	names := make(map[string]string, len(contacts))
	for _, c := range contacts {
		if c.WaID != "" && c.Profile.Name != "" {
			names[c.WaID] = c.Profile.Name
		}
	}
	return names
}

func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now().UTC()
	}
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
