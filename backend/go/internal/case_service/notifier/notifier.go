// Package notifier delivers out-of-band notifications (e-mail) to users.
package notifier

import (
	"context"

	"RoboSupport/backend/go/pkg/logger"
)

// Notifier sends a single HTML message. Delivery is best effort; callers
// log failures and move on.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// LogNotifier only logs what it would have sent. It is used when no SMTP
// relay is configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, to, subject, _ string) error {
	n.log.WithPayload(map[string]interface{}{
		"to":      to,
		"subject": subject,
	}).Info("SMTP not configured, notification logged only")
	return nil
}
