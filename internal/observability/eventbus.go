package observability

import (
	"context"

	"go.uber.org/zap"
)

// EventBus implements the domain EventPublisher interface by emitting
// structured log events. Availability transitions and pricing sync outcomes
// flow through here so an external collector can pick them up from the log
// stream.
type EventBus struct {
	logger *zap.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		logger: logger,
	}
}

// Publish publishes an event with the given type and data.
func (e *EventBus) Publish(_ context.Context, eventType string, data map[string]interface{}) {
	if e.logger == nil {
		return
	}

	fields := make([]zap.Field, 0, len(data)+1)
	fields = append(fields, zap.String("event", eventType))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}

	e.logger.With(fields...).Info(eventType)
}
