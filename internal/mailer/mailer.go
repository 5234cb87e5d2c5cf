package mailer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.redcell.dev/rangeops/internal/platform/emailqueue"
)

// Config holds SMTP connection settings for outbound delivery.
type Config struct {
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	FromAddress string
}

// Client sends queued email rows one at a time over SMTP, implementing the
// Mailer contract named in spec.md §6. It does not classify outcomes into an
// emailqueue.Status; the Batch Worker does that from the returned error.
type Client struct {
	config   *Config
	auth     smtp.Auth
	registry *Registry
	sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a Mailer client bound to an SMTP server and template registry.
func New(config *Config, registry *Registry) *Client {
	c := &Client{
		config:   config,
		registry: registry,
		sendFunc: smtp.SendMail,
	}
	if config.Username != "" && config.Password != "" {
		c.auth = smtp.PlainAuth("", config.Username, config.Password, config.SMTPHost)
	}
	return c
}

// Send delivers a single queued row and returns a provider message id on
// success (spec.md §4.2: "call Mailer.send(template, user snapshot,
// variables, optional attachment)"). The Batch Worker classifies any
// returned error into the row's failure policy; this method never mutates
// queue state itself.
func (c *Client) Send(ctx context.Context, row *emailqueue.Row) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmpl := c.registry.Lookup(row.TemplateName)
	if tmpl == nil {
		return "", fmt.Errorf("no template registered for key %q", row.TemplateName)
	}

	vars := row.Variables
	if vars == nil {
		vars = map[string]string{}
	}
	vars["display_name"] = row.DisplayName

	subject, body := tmpl.Render(vars)
	if err := c.send(row.Email, subject, body); err != nil {
		return "", fmt.Errorf("send to %s: %w", row.Email, err)
	}

	return newProviderMessageID(), nil
}

// newProviderMessageID mints a local stand-in provider message id; a real
// SMTP transport has no delivery-id concept, unlike a transactional email
// API, so one is synthesized for traceability in BatchLog and audit records.
func newProviderMessageID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "local-" + hex.EncodeToString(buf)
}

func (c *Client) send(to, subject, htmlBody string) error {
	headers := map[string]string{
		"From":         c.config.FromAddress,
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=UTF-8",
	}

	var msg strings.Builder
	for k, v := range headers {
		fmt.Fprintf(&msg, "%s: %s\r\n", k, v)
	}
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := fmt.Sprintf("%s:%d", c.config.SMTPHost, c.config.SMTPPort)
	return c.sendFunc(addr, c.auth, c.config.FromAddress, []string{to}, []byte(msg.String()))
}

// DeliveryEvent describes an asynchronous bounce/spam/unsubscribe callback
// received from the upstream mail provider's webhook (spec.md §6 scenario 6).
type DeliveryEvent struct {
	Recipient string    `json:"recipient"`
	Kind      string    `json:"kind"` // bounce, spam_report, unsubscribe
	Timestamp time.Time `json:"timestamp"`
}
