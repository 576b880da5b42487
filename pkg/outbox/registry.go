package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// EventDescriptor links an event type to its aggregate and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row ready for publishing.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   PayloadEnvelope
	Payload    any
}

// NonRetryableError signals the publisher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// Registry knows every event type this service emits.
type Registry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func NewRegistry() *Registry {
	r := &Registry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		{enums.EventOrderCreated, enums.AggregateOrder, func() any { return &OrderCreatedEvent{} }},
		{enums.EventOrderStatusChanged, enums.AggregateOrder, func() any { return &OrderStatusChangedEvent{} }},
		{enums.EventReturnRequested, enums.AggregateReturnRequest, func() any { return &ReturnRequestedEvent{} }},
		{enums.EventReturnResolved, enums.AggregateReturnRequest, func() any { return &ReturnResolvedEvent{} }},
	} {
		r.entries[desc.EventType] = desc
	}
	return r
}

// Resolve decodes the row's envelope and payload. Unknown types, aggregate
// mismatches and malformed JSON are all non-retryable.
func (r *Registry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	if !ok {
		return nil, NonRetryableError{Err: fmt.Errorf("unknown event type %q", row.EventType)}
	}
	if desc.AggregateType != row.AggregateType {
		return nil, NonRetryableError{Err: fmt.Errorf("event %s expects aggregate %s, got %s", row.EventType, desc.AggregateType, row.AggregateType)}
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("decode envelope: %w", err)}
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("decode %s payload: %w", row.EventType, err)}
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
