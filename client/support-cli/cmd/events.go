package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
)

type caseEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	TaskNumber string    `json:"task_number"`
	UserID     string    `json:"user_id"`
	Status     string    `json:"status"`
	Response   string    `json:"response"`
	OccurredAt time.Time `json:"occurred_at"`
}

var (
	brokers       []string
	eventTopic    string
	fromBeginning bool
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the case event stream",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print case events from Kafka as they are published",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		start := kafka.LastOffset
		if fromBeginning {
			start = kafka.FirstOffset
		}
		// A throwaway group so every partition is read without committing
		// offsets for the service's own consumer group.
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     "support-cli-" + uuid.NewString(),
			Topic:       eventTopic,
			StartOffset: start,
			MinBytes:    1,
			MaxBytes:    10e6, // 10MB
		})
		defer reader.Close()
		return tailEvents(ctx, reader, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
	eventsTailCmd.Flags().StringSliceVar(&brokers, "brokers", []string{"localhost:9092"}, "Kafka brokers")
	eventsTailCmd.Flags().StringVar(&eventTopic, "topic", "support_case_events", "case event topic")
	eventsTailCmd.Flags().BoolVar(&fromBeginning, "from-beginning", false, "replay the topic from the oldest retained event")
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

func tailEvents(ctx context.Context, r messageReader, w io.Writer) error {
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		var e caseEvent
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			fmt.Fprintf(w, "offset %d: undecodable event: %v\n", msg.Offset, err)
			continue
		}
		fmt.Fprintln(w, formatEvent(e))
	}
}

func formatEvent(e caseEvent) string {
	line := fmt.Sprintf("%s  %-15s %s  user=%s status=%s",
		e.OccurredAt.Local().Format(time.RFC3339), e.Type, e.TaskNumber, e.UserID, e.Status)
	if e.Response != "" {
		line += "  " + strings.Join(strings.Fields(truncate(e.Response, 80)), " ")
	}
	return line
}
