package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"RoboSupport/backend/go/internal/config"
	"RoboSupport/backend/go/internal/models"
	"RoboSupport/backend/go/pkg/logger"

	"github.com/google/uuid"
	"github.com/wneessen/go-mail"
)

const smtpTimeout = 30 * time.Second

// SMTPNotifier sends HTML mail through an authenticated relay, upgrading
// the connection with STARTTLS when the server offers it.
type SMTPNotifier struct {
	cfg config.SMTPConfig
	log *logger.Logger
	now func() time.Time
}

func NewSMTPNotifier(cfg config.SMTPConfig, log *logger.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, log: log, now: time.Now}
}

func (n *SMTPNotifier) Send(ctx context.Context, to, subject, htmlBody string) error {
	from := n.cfg.FromEmail
	if from == "" {
		from = n.cfg.Username
	}

	err := n.deliver(ctx, from, to, subject, htmlBody)
	if err != nil {
		n.log.WithPayload(map[string]interface{}{
			"to":     to,
			"server": net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port)),
		}).WithError(models.ErrorInfo{Message: err.Error(), Type: "smtp_error"}).Error("Failed to send email")
		return err
	}
	n.log.WithPayload(map[string]interface{}{"to": to, "subject": subject}).Info("Email sent")
	return nil
}

func (n *SMTPNotifier) deliver(ctx context.Context, from, to, subject, htmlBody string) error {
	msg, err := buildMessage(from, to, subject, htmlBody, n.now())
	if err != nil {
		return err
	}
	client, err := mail.NewClient(n.cfg.Host, n.clientOptions()...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail via %s: %w", n.cfg.Host, err)
	}
	return nil
}

func (n *SMTPNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTimeout(smtpTimeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTLSConfig(&tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12}),
	}
	if n.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.Username),
			mail.WithPassword(n.cfg.Password),
		)
	}
	return opts
}

// buildMessage renders a single-part text/html message.
func buildMessage(from, to, subject, htmlBody string, at time.Time) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("sender %q: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("recipient %q: %w", to, err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(at)
	msg.SetMessageIDWithValue(uuid.NewString() + "@robosupport")
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}
