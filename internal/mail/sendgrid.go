package mail

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

const sendGridHost = "https://api.sendgrid.com"

// SendGridSender sends through the SendGrid v3 mail API.
type SendGridSender struct {
	apiKey   string
	host     string
	fromName string
	from     string
	log      *zap.Logger
}

func NewSendGridSender(apiKey, from string, log *zap.Logger) *SendGridSender {
	return &SendGridSender{apiKey: apiKey, host: sendGridHost, fromName: productName, from: from, log: log}
}

// NewSender picks SendGrid when apiKey is set and LogSender otherwise.
func NewSender(apiKey, from string, log *zap.Logger) Sender {
	if apiKey == "" {
		return LogSender{Log: log}
	}
	return NewSendGridSender(apiKey, from, log)
}

func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	m := sgmail.NewSingleEmail(
		sgmail.NewEmail(s.fromName, s.from),
		msg.Subject,
		sgmail.NewEmail("", msg.To),
		"",
		msg.HTML,
	)

	req := sendgrid.GetRequest(s.apiKey, "/v3/mail/send", s.host)
	req.Method = "POST"
	req.Body = sgmail.GetRequestBody(m)

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.log.Warn("sendgrid rejected message",
			zap.Int("status", resp.StatusCode),
			zap.String("to", msg.To))
		return fmt.Errorf("sendgrid: unexpected status %d", resp.StatusCode)
	}
	return nil
}
