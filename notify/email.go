package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/c360/plantwatch/alert"
	"github.com/c360/plantwatch/errors"
)

// EmailConfig configures SMTP delivery
type EmailConfig struct {
	Enabled  bool     `json:"enabled"`
	Host     string   `json:"host"`
	Port     int      `json:"port"`
	From     string   `json:"from"`
	To       []string `json:"to"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
}

// Email delivers notifications over SMTP
type Email struct {
	config EmailConfig
	// send is swappable for tests
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail creates the email channel
func NewEmail(config EmailConfig) *Email {
	return &Email{config: config, send: smtp.SendMail}
}

// Name implements Channel
func (e *Email) Name() string { return "email" }

// Enabled implements Channel
func (e *Email) Enabled() bool {
	return e.config.Enabled && e.config.Host != "" && len(e.config.To) > 0
}

// Send delivers the alert as a plain-text email to the configured
// recipients. smtp.SendMail has no context hook, so the deadline is checked
// before dialing and the dispatcher's attempt timeout bounds the overall
// call.
func (e *Email) Send(ctx context.Context, a alert.Alert) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "notify-email", "Send", "deadline check")
	}

	var auth smtp.Auth
	if e.config.Username != "" {
		auth = smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)
	}

	msg := e.render(a)
	addr := net.JoinHostPort(e.config.Host, fmt.Sprintf("%d", e.config.Port))
	if err := e.send(addr, auth, e.config.From, e.config.To, msg); err != nil {
		return errors.WrapTransient(err, "notify-email", "Send", "smtp delivery")
	}
	return nil
}

func (e *Email) render(a alert.Alert) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.config.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject(a))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")

	fmt.Fprintf(&b, "Equipment: %s\r\n", a.EquipmentID)
	fmt.Fprintf(&b, "Sensor:    %s (%s)\r\n", a.Sensor, a.Parameter)
	fmt.Fprintf(&b, "Severity:  %s\r\n", a.Severity)
	fmt.Fprintf(&b, "Value:     %.2f (threshold %.2f)\r\n", a.Value, a.Threshold)
	if a.Location != "" {
		fmt.Fprintf(&b, "Location:  %s\r\n", a.Location)
	}
	fmt.Fprintf(&b, "Raised:    %s\r\n\r\n%s\r\n", a.CreatedAt.Format("2006-01-02 15:04:05 MST"), a.Message)
	return []byte(b.String())
}
