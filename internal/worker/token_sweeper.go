package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ExpiredTokenSweeper revokes refresh tokens whose expiry has passed.
type ExpiredTokenSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SweepRecorder observes the result of each sweep.
type SweepRecorder interface {
	RecordSweep(n int64)
}

// TokenSweeper periodically marks expired refresh tokens as revoked. It is housekeeping only:
// expiry is always checked when a token is presented.
type TokenSweeper struct {
	sweeper  ExpiredTokenSweeper
	metrics  SweepRecorder
	interval time.Duration
	logger   *zap.Logger
}

// NewTokenSweeper creates a sweeper. A non-positive interval disables it.
func NewTokenSweeper(sweeper ExpiredTokenSweeper, interval time.Duration, metrics SweepRecorder, logger *zap.Logger) *TokenSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenSweeper{sweeper: sweeper, metrics: metrics, interval: interval, logger: logger}
}

// Start runs the sweep loop. It blocks until ctx is cancelled.
func (s *TokenSweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("token sweeper disabled")
		return
	}
	s.logger.Info("token sweeper started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("token sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *TokenSweeper) sweep(ctx context.Context) {
	n, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("token sweep failed", zap.Error(err))
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordSweep(n)
	}
	if n > 0 {
		s.logger.Info("revoked expired refresh tokens", zap.Int64("count", n))
	}
}
