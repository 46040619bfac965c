package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"proctor-quiz-service/internal/domain"
)

// RunTimer ticks the session once per interval until it is terminal or ctx is done.
// Tick errors other than a terminal state are logged and the timer keeps going, so a failed
// auto-submit is retried on the next tick.
func RunTimer(ctx context.Context, s *Session, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				if IsTerminal(err) {
					return
				}
				s.log.Warn("tick failed", zap.Error(err))
			}
			if s.Status() != domain.SessionActive {
				return
			}
		}
	}
}
