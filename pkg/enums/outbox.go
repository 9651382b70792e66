package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
)

var aggregateTypes = map[OutboxAggregateType]struct{}{
	AggregateOrder:   {},
	AggregatePayment: {},
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	_, ok := aggregateTypes[a]
	return ok
}

// ParseOutboxAggregateType validates raw input against the aggregate_type enum.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	aggregate := OutboxAggregateType(value)
	if !aggregate.IsValid() {
		return "", fmt.Errorf("invalid aggregate type %q", value)
	}
	return aggregate, nil
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated   OutboxEventType = "order.created"
	EventOrderCancelled OutboxEventType = "order.cancelled"
	EventPaymentFailed  OutboxEventType = "payment.failed"
)

var outboxEventTypes = map[OutboxEventType]struct{}{
	EventOrderCreated:   {},
	EventOrderCancelled: {},
	EventPaymentFailed:  {},
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	_, ok := outboxEventTypes[e]
	return ok
}

// ParseOutboxEventType validates raw input against the event_type enum.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	event := OutboxEventType(value)
	if !event.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return event, nil
}

// OutboxDLQErrorReason classifies why a row was parked in the DLQ.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
