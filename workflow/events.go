package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/mmdatafocus/double_entry/workflow")

type DomainEventType string

const (
	DomainEventJournalCreated DomainEventType = "journal.created"
	DomainEventLedgerCreated  DomainEventType = "ledger.created"
	DomainEventLedgerDeleted  DomainEventType = "ledger.deleted"
)

// DomainEvent is a fire-and-forget notification about a ledger store mutation.
type DomainEvent struct {
	Type          DomainEventType `json:"type"`
	BusinessId    string          `json:"business_id"`
	ReferenceId   int             `json:"reference_id"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationId string          `json:"correlation_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// EventPublisher delivers domain events to whoever subscribes. Nothing the engine does
// depends on the outcome.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

func newDomainEvent(ctx context.Context, eventType DomainEventType, businessId string, referenceId int, payload any) DomainEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}
	return DomainEvent{
		Type:          eventType,
		BusinessId:    businessId,
		ReferenceId:   referenceId,
		Payload:       data,
		CorrelationId: correlationIdFromContextOrNew(ctx),
		OccurredAt:    time.Now().UTC(),
	}
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// publishEvents sends each event and logs failures; it never fails the caller.
func publishEvents(ctx context.Context, publisher EventPublisher, logger *logrus.Logger, events ...DomainEvent) {
	if publisher == nil {
		return
	}
	for _, ev := range events {
		if err := publisher.Publish(ctx, ev); err != nil {
			config.LogError(logger, "events.go", "publishEvents", "publishing "+string(ev.Type), ev.ReferenceId, err)
		}
	}
}

// PubSubEventPublisher publishes domain events as JSON to a Pub/Sub topic.
type PubSubEventPublisher struct {
	Topic string
}

func (p *PubSubEventPublisher) Publish(ctx context.Context, event DomainEvent) error {
	_, err := config.PublishJSON(ctx, p.Topic, event, map[string]string{
		"type":        string(event.Type),
		"business_id": event.BusinessId,
	})
	return err
}

// LogEventPublisher writes domain events to the log; used when no event topic is configured.
type LogEventPublisher struct {
	Logger *logrus.Logger
}

func (p *LogEventPublisher) Publish(_ context.Context, event DomainEvent) error {
	if p.Logger == nil {
		return nil
	}
	p.Logger.WithFields(logrus.Fields{
		"field":          "DomainEvent",
		"type":           event.Type,
		"business_id":    event.BusinessId,
		"reference_id":   event.ReferenceId,
		"correlation_id": event.CorrelationId,
	}).Info("domain event")
	return nil
}
