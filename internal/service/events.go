package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fromscratch/identity/internal/queue"
)

const publishTimeout = 2 * time.Second

// emit publishes ev after the caller's unit of work committed. Failures are
// logged and never reach the caller.
func emit(ctx context.Context, p queue.Publisher, log *zap.Logger, ev queue.Event) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		log.Warn("domain event dropped", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
