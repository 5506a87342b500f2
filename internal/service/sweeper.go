package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dealerdesk/wainbox/internal/observ"
	"github.com/dealerdesk/wainbox/internal/repository"
)

// Sweeper closes the crash window in the non-atomic send path: a process
// dying between the queued insert and the result patch leaves a row
// permanently queued. Anything queued past the threshold is marked
// failed so the client can offer a retry.
type Sweeper struct {
	messages repository.MessageRepository
	after    time.Duration
	interval time.Duration
	clock    Clock
	logger   *zap.Logger
}

func NewSweeper(messages repository.MessageRepository, after, interval time.Duration, clock Clock, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		messages: messages,
		after:    after,
		interval: interval,
		clock:    clock,
		logger:   logger,
	}
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce marks overdue queued messages failed and reports the count.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	cutoff := s.clock.Now().Add(-s.after)
	swept, err := s.messages.SweepQueued(ctx, cutoff)
	if err != nil {
		s.logger.Error("queued sweep failed", zap.Error(err))
		return 0
	}
	if swept > 0 {
		observ.QueuedSweptTotal.Add(float64(swept))
		s.logger.Warn("swept stuck queued messages to failed",
			zap.Int64("count", swept),
		)
	}
	return swept
}
