package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Locker hands out short leases so that one replica runs a job at a time.
type Locker interface {
	Acquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

// Job is a named task run on a cron spec (seconds field included).
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error

	// LeaseTTL bounds a single run across replicas. Zero skips the lease.
	LeaseTTL time.Duration
}

type Scheduler struct {
	cron   *cron.Cron
	locker Locker
	logger *zap.Logger
	owner  string

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func New(locker Locker, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	cl := cronLogger{logger.Sugar()}

	host, _ := os.Hostname()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		locker: locker,
		logger: logger,
		owner:  host + "/" + uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	_, err := s.cron.AddFunc(job.Spec, func() {
		if _, err := s.RunOnce(s.ctx, job); err != nil {
			s.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q (%s): %w", job.Name, job.Spec, err)
	}
	s.logger.Info("job scheduled", zap.String("job", job.Name), zap.String("spec", job.Spec))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs job under its lease. It reports false when another replica
// holds the lease.
func (s *Scheduler) RunOnce(ctx context.Context, job Job) (bool, error) {
	key := "jobs:" + job.Name

	if s.locker != nil && job.LeaseTTL > 0 {
		ok, err := s.locker.Acquire(ctx, key, s.owner, job.LeaseTTL)
		if err != nil {
			return false, fmt.Errorf("acquire lease: %w", err)
		}
		if !ok {
			s.logger.Debug("lease held elsewhere, skipping", zap.String("job", job.Name))
			return false, nil
		}
		defer func() {
			// the run context may already be cancelled on shutdown
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := s.locker.Release(rctx, key, s.owner); err != nil {
				s.logger.Warn("release lease", zap.String("job", job.Name), zap.Error(err))
			}
		}()
	}

	runCtx := ctx
	if job.LeaseTTL > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.LeaseTTL)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(runCtx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return true, nil
	}
	s.logger.Debug("job finished",
		zap.String("job", job.Name),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	return true, err
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
