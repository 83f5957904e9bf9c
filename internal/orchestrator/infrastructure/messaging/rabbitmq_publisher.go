package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"av-trip/pkg/events"
	"av-trip/pkg/logger"
	"av-trip/pkg/rabbitmq"
)

// RabbitMQEventPublisher implements events.Sink by publishing every change
// record to a topic exchange. Delivery failures are logged, never
// propagated back into registry or orchestrator logic.
type RabbitMQEventPublisher struct {
	rabbit *rabbitmq.Connection
	logger logger.Logger
}

// NewRabbitMQEventPublisher creates a new RabbitMQ event publisher
func NewRabbitMQEventPublisher(rabbit *rabbitmq.Connection, logger logger.Logger) *RabbitMQEventPublisher {
	return &RabbitMQEventPublisher{
		rabbit: rabbit,
		logger: logger,
	}
}

// Emit publishes a change record to RabbitMQ.
func (p *RabbitMQEventPublisher) Emit(record events.ChangeRecord) {
	body, err := json.Marshal(record)
	if err != nil {
		p.logger.Error("marshal_change_record_failed", err)
		return
	}

	exchange := "registry_topic"
	if record.EntityType == "trip" {
		exchange = "trip_topic"
	}
	routingKey := routingKeyFor(record)

	if err := p.rabbit.Publish(context.Background(), exchange, routingKey, body); err != nil {
		p.logger.WithFields(logger.LogFields{
			"entity_type": record.EntityType,
			"entity_id":   record.EntityID,
			"routing_key": routingKey,
		}).Error("publish_change_record_failed", err)
		return
	}

	p.logger.WithFields(logger.LogFields{
		"entity_type": record.EntityType,
		"entity_id":   record.EntityID,
		"routing_key": routingKey,
	}).Debug("change_record_published", "Change record published to RabbitMQ")
}

// routingKeyFor builds <entityType>.<new-state> keys like
// trip.in_progress or vehicle.expecting.
func routingKeyFor(record events.ChangeRecord) string {
	state := strings.ToLower(record.NewState)
	if state == "" {
		state = "unknown"
	}
	return fmt.Sprintf("%s.%s", record.EntityType, state)
}
