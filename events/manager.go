// Package events publishes the outcome of ingestions to the message broker.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SanteonNL/ehealth-ingest/lib/debug"
	"github.com/SanteonNL/ehealth-ingest/lib/logging"
	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/SanteonNL/ehealth-ingest/messaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = baseotel.Tracer("events")

// Type is an event that can be published.
type Type interface {
	Topic() messaging.Topic
}

// Manager publishes events.
type Manager interface {
	Notify(ctx context.Context, instance Type) error
}

func NewManager(broker messaging.Broker) *DefaultManager {
	return &DefaultManager{broker: broker}
}

var _ Manager = &DefaultManager{}

type DefaultManager struct {
	broker messaging.Broker
}

// Notify publishes the event as JSON to its topic. Every message gets a fresh correlation ID.
func (d DefaultManager) Notify(ctx context.Context, instance Type) error {
	topic := instance.Topic()
	ctx, span := tracer.Start(ctx, debug.GetFullCallerName(),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String(otel.MessagingTopic, topic.Name)),
	)
	defer span.End()

	body, err := json.Marshal(instance)
	if err != nil {
		return otel.Error(span, err)
	}
	correlationID := uuid.NewString()
	message := &messaging.Message{
		Body:          body,
		ContentType:   "application/json",
		CorrelationID: &correlationID,
	}
	if err = d.broker.SendMessage(ctx, topic, message); err != nil {
		return otel.Error(span, fmt.Errorf("event send %T: %w", instance, err))
	}
	log.Ctx(ctx).Debug().
		Str(logging.FieldTopic, topic.Name).
		Msgf("Published event (correlation ID: %s)", correlationID)
	return nil
}
