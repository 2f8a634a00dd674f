// Package notify sends team notifications by email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"

	"github.com/wneessen/go-mail"

	"gestionale/internal/platform/config"
)

// Message is one outbound email. HTML is optional.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer delivers through an SMTP relay.
type SMTPMailer struct {
	from   string
	client *mail.Client
}

// NewSMTPMailer builds a mailer for cfg. Plain auth is used only when a user is set.
func NewSMTPMailer(cfg config.SMTP) (*SMTPMailer, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.User),
			mail.WithPassword(cfg.Pass),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &SMTPMailer{from: cfg.From, client: client}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return errors.New("message has no recipients")
	}
	out := mail.NewMsg()
	if err := out.From(m.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := out.To(msg.To...); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		out.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	if err := m.client.DialAndSendWithContext(ctx, out); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "email not sent, no SMTP host configured",
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// New picks the SMTP mailer when a host is configured, else the log mailer.
func New(cfg config.SMTP, logger *slog.Logger) (Mailer, error) {
	if cfg.Host == "" {
		return NewLogMailer(logger), nil
	}
	return NewSMTPMailer(cfg)
}

// NewLead is sent to the sales team when a customer is created as a lead.
func NewLead(to, name, address string) Message {
	return Message{
		To:      []string{to},
		Subject: "Nuovo lead: " + name,
		Text:    fmt.Sprintf("Nuovo lead creato (%s - %s).", name, address),
		HTML: fmt.Sprintf("<p>Nuovo lead creato:</p><p><b>%s</b> - %s</p>",
			html.EscapeString(name), html.EscapeString(address)),
	}
}

// NewTicket is sent to the support team when a ticket is opened.
// An empty assignee renders as a dash.
func NewTicket(to, customerName, title, assigneeEmail string) Message {
	if assigneeEmail == "" {
		assigneeEmail = "—"
	}
	return Message{
		To:      []string{to},
		Subject: "Nuovo ticket: " + title,
		Text:    fmt.Sprintf("Cliente: %s\nTicket: %s\nAssegnato a: %s", customerName, title, assigneeEmail),
	}
}
