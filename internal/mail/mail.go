// Package mail delivers transactional email.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// Message is a single HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a Message. An error means the message was not accepted.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const productName = "FromScratch.ai"

// PasswordReset renders the reset email pointing at
// origin/auth/reset-password?token=....
func PasswordReset(to, origin, token string, valid time.Duration) (Message, error) {
	resetURL := origin + "/auth/reset-password?token=" + url.QueryEscape(token)

	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "password_reset.html", struct {
		Product      string
		ResetURL     string
		ValidMinutes int
	}{productName, resetURL, int(valid.Minutes())})
	if err != nil {
		return Message{}, fmt.Errorf("render password reset: %w", err)
	}
	return Message{
		To:      to,
		Subject: "Secure Password Reset - " + productName,
		HTML:    buf.String(),
	}, nil
}

// LogSender accepts every message and only logs its envelope. It stands in
// for SendGrid when no API key is configured.
type LogSender struct{ Log *zap.Logger }

func (s LogSender) Send(_ context.Context, msg Message) error {
	s.Log.Info("mail delivery disabled, message dropped",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	return nil
}
