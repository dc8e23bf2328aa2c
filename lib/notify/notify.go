// Package notify delivers best-effort crawl progress messages to an owner.
package notify

import (
	"context"
	"errors"
	"fmt"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/telemetry"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("kadai.lib.notify")

// Slog writes every message to the default logger.
type Slog struct{}

func (Slog) Notify(ctx context.Context, owner, message string) error {
	slog.InfoContext(ctx, "crawl progress", "owner", owner, "message", message)
	return nil
}

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
	// fmt pattern turning an owner id into a mailbox, e.g. "%s@ms.example.ac.jp"
	RecipientFormat string `json:"recipient_format"`
}

type Email struct {
	config SmtpConfig
}

func NewEmail(config SmtpConfig) Email {
	return Email{config: config}
}

func (e Email) Notify(ctx context.Context, owner, message string) error {
	ctx, span := tracer.Start(ctx, "Email:Notify")
	defer span.End()

	if e.config.RecipientFormat == "" {
		return fmt.Errorf("notify: no recipient format configured")
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Kadai <%s>", e.config.EmailAddress)
	mail.To = []string{fmt.Sprintf(e.config.RecipientFormat, owner)}
	mail.Subject = "Assignment sync"
	mail.Text = []byte(message)

	addr := fmt.Sprintf("%s:%d", e.config.Server, e.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", e.config.EmailAddress, e.config.Password, e.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}

// Multi fans a message out to every notifier and joins their errors.
type Multi []portal.Notifier

func (m Multi) Notify(ctx context.Context, owner, message string) error {
	var errs []error
	for _, n := range m {
		err := n.Notify(ctx, owner, message)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type asyncMessage struct {
	ctx     context.Context
	owner   string
	message string
}

// Async hands messages to a background goroutine so Notify never blocks the
// crawl. Messages arriving while the buffer is full are dropped.
type Async struct {
	next  portal.Notifier
	queue chan asyncMessage
	done  chan struct{}
	once  sync.Once
}

func NewAsync(next portal.Notifier, buffer int) *Async {
	a := &Async{
		next:  next,
		queue: make(chan asyncMessage, buffer),
		done:  make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for msg := range a.queue {
		err := a.next.Notify(msg.ctx, msg.owner, msg.message)
		if err != nil {
			slog.WarnContext(msg.ctx, "failed to deliver notification", "owner", msg.owner, "err", err)
		}
	}
}

func (a *Async) Notify(ctx context.Context, owner, message string) error {
	select {
	case a.queue <- asyncMessage{ctx: context.WithoutCancel(ctx), owner: owner, message: message}:
	default:
		slog.WarnContext(ctx, "notification queue full, dropping message", "owner", owner)
	}
	return nil
}

// Close waits for queued messages to be delivered. Notify must not be
// called after Close.
func (a *Async) Close() {
	a.once.Do(func() {
		close(a.queue)
	})
	<-a.done
}

// FromConfig logs every message and, when smtp is given, mails it too. The
// result is asynchronous and must be closed.
func FromConfig(smtp *SmtpConfig, buffer int) *Async {
	notifiers := Multi{Slog{}}
	if smtp != nil && smtp.Server != "" {
		notifiers = append(notifiers, NewEmail(*smtp))
	}
	return NewAsync(notifiers, buffer)
}
