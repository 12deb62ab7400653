package provider

import (
	"context"
	"time"
)

// Metric hooks are no-ops unless the store was built with WithMetrics.

func (s *Store) recordOperation(ctx context.Context, provider, operation, status string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOperation(ctx, provider, operation, status, time.Since(start))
}

func (s *Store) recordActivation(ctx context.Context, provider string, delta int64) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordActivation(ctx, provider, delta)
}

func (s *Store) recordError(ctx context.Context, errType, provider string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordError(ctx, errType, provider)
}
