// Package consumer follows the case event topic and keeps the shared status
// cache in step with resolutions seen by any service instance.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"RoboSupport/backend/go/internal/case_service/store"
	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventConsumer consumes case events from Kafka.
type EventConsumer struct {
	reader MessageReader
	logger *logger.Logger
}

// NewEventConsumer creates a consumer-group reader on topic.
func NewEventConsumer(brokers []string, topic, groupID string, logger *logger.Logger) *EventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newEventConsumer(reader, logger)
}

func newEventConsumer(reader MessageReader, logger *logger.Logger) *EventConsumer {
	return &EventConsumer{reader: reader, logger: logger}
}

// Run fetches messages until ctx ends, passing each decoded event to
// handler. Messages are committed whether or not the handler succeeds.
func (c *EventConsumer) Run(ctx context.Context, handler func(context.Context, models.CaseEvent) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping case event consumer...")
				return nil
			}
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error fetching message from Kafka")
			return fmt.Errorf("fetch case event: %w", err)
		}

		var event models.CaseEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Warn("Skipping undecodable case event")
		} else if err := handler(ctx, event); err != nil {
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"topic":       msg.Topic,
				"partition":   msg.Partition,
				"offset":      msg.Offset,
				"task_number": event.TaskNumber,
			}).Error("Error handling case event")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to commit Kafka message")
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *EventConsumer) Close() error {
	return c.reader.Close()
}

// CacheResolutions returns a handler that records resolved cases in cache so
// status probes on every instance answer without visiting the portal.
func CacheResolutions(cache store.StatusCache) func(context.Context, models.CaseEvent) error {
	return func(ctx context.Context, event models.CaseEvent) error {
		if event.Type != models.EventCaseResolved {
			return nil
		}
		return cache.Set(ctx, event.TaskNumber, store.CachedStatus{
			Status:   models.CaseResolved,
			Response: event.Response,
			At:       event.OccurredAt,
		})
	}
}
