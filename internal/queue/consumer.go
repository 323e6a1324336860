package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AuditFile appends one line per event to Path, creating parent
// directories on first use.
type AuditFile struct {
	Path string
	mu   sync.Mutex
}

func (a *AuditFile) Append(line string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(a.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write audit file: %w", err)
	}
	return nil
}

// FormatAuditLine renders ev as a single human-readable line.
func FormatAuditLine(ev Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | user_id=%s", ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.UserID)
	if ev.Provider != "" {
		fmt.Fprintf(&b, " | provider=%s", ev.Provider)
	}
	if ev.SubscriptionID != "" {
		fmt.Fprintf(&b, " | subscription_id=%s", ev.SubscriptionID)
	}
	if ev.PlanID != "" {
		fmt.Fprintf(&b, " | plan_id=%s", ev.PlanID)
	}
	if ev.PaymentID != "" {
		fmt.Fprintf(&b, " | payment_id=%s", ev.PaymentID)
	}
	if ev.AmountCents != 0 {
		fmt.Fprintf(&b, " | amount=%d.%02d %s", ev.AmountCents/100, ev.AmountCents%100, strings.ToUpper(ev.Currency))
	}
	if ev.EndDate != nil {
		fmt.Fprintf(&b, " | end_date=%s", ev.EndDate.UTC().Format(time.RFC3339))
	}
	b.WriteByte('\n')
	return b.String()
}

// Consumer drains EventsQueue into an AuditFile.
type Consumer struct {
	URL  string
	File *AuditFile
	Log  *zap.Logger
}

// Run reconnects with exponential backoff until ctx is cancelled. A message
// that cannot be decoded or written is rejected without requeue.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn("audit consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.Warn("audit consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.Warn("audit consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(EventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, EventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.Log.Warn("audit consumer: message rejected", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes body and appends it to the audit file.
func (c *Consumer) Handle(body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	return c.File.Append(FormatAuditLine(ev))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
