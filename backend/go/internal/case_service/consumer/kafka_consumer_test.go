package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"RoboSupport/backend/go/internal/case_service/store"
	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// fakeReader serves queued messages, then blocks until ctx ends.
type fakeReader struct {
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.queue) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type mapCache map[string]store.CachedStatus

func (c mapCache) Get(_ context.Context, task string) (*store.CachedStatus, error) {
	cs, ok := c[task]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (c mapCache) Set(_ context.Context, task string, cs store.CachedStatus) error {
	c[task] = cs
	return nil
}

func eventMessage(t *testing.T, offset int64, e models.CaseEvent) kafka.Message {
	t.Helper()
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Offset: offset, Key: []byte(e.TaskNumber), Value: raw}
}

func TestRun_CachesResolutions(t *testing.T) {
	logger.SetOutput(io.Discard)
	at := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	reader := &fakeReader{queue: []kafka.Message{
		eventMessage(t, 1, models.CaseEvent{Type: models.EventCaseSubmitted, TaskNumber: "SUP-1"}),
		{Offset: 2, Value: []byte("not json")},
		eventMessage(t, 3, models.CaseEvent{Type: models.EventCaseResolved, TaskNumber: "SUP-1", Response: "Fixed.", OccurredAt: at}),
	}}
	c := newEventConsumer(reader, logger.New("consumer-test", "", ""))
	cache := mapCache{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx, CacheResolutions(cache)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, ok := cache["SUP-1"]
	if !ok || got.Status != models.CaseResolved || got.Response != "Fixed." || !got.At.Equal(at) {
		t.Errorf("cache[SUP-1] = %+v, %v", got, ok)
	}
	if len(reader.committed) != 3 {
		t.Errorf("committed offsets = %v, want all 3", reader.committed)
	}
}

type failingReader struct{ fakeReader }

func (failingReader) FetchMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("group coordinator not available")
}

func TestRun_FetchErrorStops(t *testing.T) {
	logger.SetOutput(io.Discard)
	c := newEventConsumer(&failingReader{}, logger.New("consumer-test", "", ""))

	if err := c.Run(context.Background(), CacheResolutions(mapCache{})); err == nil {
		t.Fatal("Run() error = nil, want fetch error")
	}
}
