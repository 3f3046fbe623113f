package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"alfredoptarigan/interview-engine/internal/repositories"
)

// ExpirySweeper cancels scheduled interviews that were never started.
type ExpirySweeper interface {
	Start() error
	Stop()
	RunOnce(ctx context.Context) (int, error)
}

type SweeperOptions struct {
	Schedule     string
	ScheduledTTL time.Duration
	BatchSize    int
	Concurrency  int
}

type expirySweeper struct {
	interviews repositories.InterviewRepository
	engine     SessionEngine
	opts       SweeperOptions
	cron       *cron.Cron
	log        *zap.Logger
	now        func() time.Time
	running    sync.Mutex
}

func NewExpirySweeper(interviews repositories.InterviewRepository, engine SessionEngine, opts SweeperOptions, log *zap.Logger) ExpirySweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &expirySweeper{
		interviews: interviews,
		engine:     engine,
		opts:       opts,
		cron:       cron.New(),
		log:        log.Named("sweeper"),
		now:        time.Now,
	}
}

func (s *expirySweeper) Start() error {
	_, err := s.cron.AddFunc(s.opts.Schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.Error("sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("expiry sweeper started",
		zap.String("schedule", s.opts.Schedule),
		zap.Duration("scheduled_ttl", s.opts.ScheduledTTL),
	)
	return nil
}

func (s *expirySweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("expiry sweeper stopped")
}

// RunOnce cancels one batch of stale scheduled interviews and returns how
// many were cancelled. Overlapping runs are skipped.
func (s *expirySweeper) RunOnce(ctx context.Context) (int, error) {
	if !s.running.TryLock() {
		s.log.Debug("previous sweep still running, skipping")
		return 0, nil
	}
	defer s.running.Unlock()

	stale, err := s.interviews.FindStaleScheduled(s.now().Add(-s.opts.ScheduledTTL), s.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	queue := make(chan uuid.UUID)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		cancelled int
	)

	for i := 0; i < s.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				err := s.engine.Expire(ctx, id)
				switch {
				case err == nil:
					mu.Lock()
					cancelled++
					mu.Unlock()
				case errors.Is(err, ErrInvalidTransition):
					// started or finished since the scan
				default:
					s.log.Warn("failed to cancel stale interview", zap.String("interview_id", id.String()), zap.Error(err))
				}
			}
		}()
	}

	for _, interview := range stale {
		queue <- interview.ID
	}
	close(queue)
	wg.Wait()

	s.log.Info("stale scheduled interviews cancelled", zap.Int("found", len(stale)), zap.Int("cancelled", cancelled))
	return cancelled, nil
}
