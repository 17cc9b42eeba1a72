package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/conformapro/conformapro/internal/jobs"
)

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer builds a mailer for host:port. Authentication is optional.
func NewSMTPMailer(host string, port int, from, username, password string) *SMTPMailer {
	m := &SMTPMailer{Addr: net.JoinHostPort(host, strconv.Itoa(port)), From: from, send: smtp.SendMail}
	if username != "" {
		m.Auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

// Send formats and relays msg.
func (m *SMTPMailer) Send(ctx context.Context, msg SendEmailPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return errors.New("mailer: header injection")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)
	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	return send(m.Addr, m.Auth, m.From, []string{msg.To}, []byte(b.String()))
}

// SendEmailJob handles TaskTypeSendEmail tasks.
type SendEmailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskTypeSendEmail tasks. Malformed payloads are not retried.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.To == "" {
		return fmt.Errorf("send email: bad payload: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskTypeSendEmail)
	err := j.Mailer.Send(ctx, payload)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		logger.Error("send email", slog.String("to", payload.To), slog.Any("error", err))
	} else {
		logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	}
	return tracker.End(err)
}
