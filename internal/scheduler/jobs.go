package scheduler

import (
	"context"
	"time"

	"deal-service/internal/service"

	"go.uber.org/zap"
)

type Resender interface {
	ResendFailedMessages(ctx context.Context) (service.ResendSummary, error)
}

type Cleaner interface {
	CleanupOlderThan(d time.Duration) (int, error)
}

// ResendJob retries undelivered main borrower updates.
func ResendJob(spec string, leaseTTL time.Duration, r Resender) Job {
	return Job{
		Name:     "resend-main-borrower",
		Spec:     spec,
		LeaseTTL: leaseTTL,
		Run: func(ctx context.Context) error {
			_, err := r.ResendFailedMessages(ctx)
			return err
		},
	}
}

// CleanupJob removes export files older than maxAge.
func CleanupJob(spec string, maxAge time.Duration, c Cleaner, logger *zap.Logger) Job {
	return Job{
		Name: "cleanup-exports",
		Spec: spec,
		Run: func(ctx context.Context) error {
			n, err := c.CleanupOlderThan(maxAge)
			if n > 0 {
				logger.Info("export files removed", zap.Int("count", n))
			}
			return err
		},
	}
}
