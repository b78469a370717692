// Package publisher emits support case lifecycle events to Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// EventPublisher writes case events keyed by task number, so every event of
// one case lands on the same partition in order.
type EventPublisher struct {
	writer MessageWriter
	topic  string
	logger *logger.Logger
}

// NewEventPublisher creates a publisher on an already configured writer.
func NewEventPublisher(writer MessageWriter, topic string, logger *logger.Logger) *EventPublisher {
	return &EventPublisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

// Publish sends one case event.
func (p *EventPublisher) Publish(ctx context.Context, event models.CaseEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal case event")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.TaskNumber),
		Value: msgBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"topic":       p.topic,
			"event_type":  event.Type,
			"task_number": event.TaskNumber,
		}).Error("Failed to write case event to Kafka")
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Discard is used when no Kafka brokers are configured.
type Discard struct{}

func (Discard) Publish(context.Context, models.CaseEvent) error { return nil }
