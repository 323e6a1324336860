// Command auditlog consumes identity and billing events from RabbitMQ and
// appends one line per event to an audit file.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fromscratch/identity/internal/queue"
)

func main() {
	_ = godotenv.Load()

	out := flag.String("out", "logs/audit.log", "audit file to append to")
	flag.Parse()

	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		log.Fatal("RABBITMQ_URL is required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &queue.Consumer{URL: url, File: &queue.AuditFile{Path: *out}, Log: logger}
	logger.Info("audit consumer started", zap.String("queue", queue.EventsQueue), zap.String("file", *out))
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("audit consumer stopped", zap.Error(err))
	}
}
