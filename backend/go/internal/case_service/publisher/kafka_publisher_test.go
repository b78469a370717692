package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func newTestPublisher(w MessageWriter) *EventPublisher {
	logger.SetOutput(io.Discard)
	return NewEventPublisher(w, "support_case_events", logger.New("publisher-test", "", ""))
}

func TestPublish_KeysByTaskNumber(t *testing.T) {
	w := &fakeWriter{}
	p := newTestPublisher(w)
	event := models.CaseEvent{
		EventID:    "e1",
		Type:       models.EventCaseResolved,
		TaskNumber: "SUP-7",
		UserID:     "u1",
		Status:     models.CaseResolved,
		Response:   "Fixed.",
		OccurredAt: time.Date(2025, 3, 3, 16, 5, 0, 0, time.UTC),
	}

	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "SUP-7" {
		t.Errorf("key = %q, want SUP-7", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(models.EventCaseResolved) {
		t.Errorf("headers = %+v", msg.Headers)
	}
	var decoded models.CaseEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Response != "Fixed." || !decoded.OccurredAt.Equal(event.OccurredAt) {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPublish_WriterError(t *testing.T) {
	sentinel := errors.New("broker unavailable")
	p := newTestPublisher(&fakeWriter{err: sentinel})

	err := p.Publish(context.Background(), models.CaseEvent{Type: models.EventCaseSubmitted, TaskNumber: "SUP-1"})
	if !errors.Is(err, sentinel) {
		t.Errorf("Publish() error = %v, want wrapped %v", err, sentinel)
	}
}
