package consumer

import (
	"encoding/json"

	"av-trip/pkg/events"
	"av-trip/pkg/logger"
	"av-trip/pkg/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditConsumer tails the audit queues and writes every change record to
// the structured log. It is the downstream half of the change-record
// pipeline: registries and the orchestrator publish, this consumer keeps
// the durable audit trail.
type AuditConsumer struct {
	rabbit *rabbitmq.Connection
	log    logger.Logger
}

func New(rabbit *rabbitmq.Connection, log logger.Logger) *AuditConsumer {
	return &AuditConsumer{
		rabbit: rabbit,
		log:    log,
	}
}

// StartConsuming starts consumers on both audit queues.
func (c *AuditConsumer) StartConsuming() error {
	if err := c.consumeQueue("trip_audit"); err != nil {
		return err
	}
	if err := c.consumeQueue("registry_audit"); err != nil {
		return err
	}
	c.log.Info("consumers_started", "Audit consumers started")
	return nil
}

func (c *AuditConsumer) consumeQueue(queueName string) error {
	c.log.WithFields(logger.LogFields{
		"queue": queueName,
	}).Info("consumer_starting", "Starting audit consumer")

	return c.rabbit.Consume(queueName, func(msg amqp.Delivery) {
		c.handleChangeRecord(queueName, msg.Body)
		msg.Ack(false)
	})
}

func (c *AuditConsumer) handleChangeRecord(queueName string, body []byte) {
	var record events.ChangeRecord
	if err := json.Unmarshal(body, &record); err != nil {
		c.log.Error("unmarshal_change_record_failed", err)
		return
	}

	c.log.WithFields(logger.LogFields{
		"queue":          queueName,
		"entity_type":    record.EntityType,
		"entity_id":      record.EntityID,
		"previous_state": record.PreviousState,
		"new_state":      record.NewState,
		"timestamp":      record.Timestamp,
	}).Info("change_record_audited", "Change record received on audit queue")
}
