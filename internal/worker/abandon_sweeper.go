package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const sweepTimeout = 30 * time.Second

// ExpiredSessionAbandoner is the part of the session service the sweeper drives.
type ExpiredSessionAbandoner interface {
	AbandonExpiredSessions(ctx context.Context, limit int) (int, error)
}

// AbandonSweeper periodically abandons in-progress sessions whose test
// window has closed.
type AbandonSweeper struct {
	service   ExpiredSessionAbandoner
	schedule  string
	batchSize int
	logger    *slog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewAbandonSweeper(service ExpiredSessionAbandoner, schedule string, batchSize int, logger *slog.Logger) *AbandonSweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &AbandonSweeper{
		service:   service,
		schedule:  schedule,
		batchSize: batchSize,
		logger:    logger.With("component", "abandon_sweeper"),
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the job and starts the scheduler in its own goroutine.
func (s *AbandonSweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("Abandon sweeper started", "schedule", s.schedule, "batch_size", s.batchSize)
	return nil
}

// Stop cancels a running sweep and waits for it to return.
func (s *AbandonSweeper) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Abandon sweeper stopped")
}

func (s *AbandonSweeper) run() {
	ctx, cancel := context.WithTimeout(s.ctx, sweepTimeout)
	defer cancel()

	start := time.Now()
	abandoned, err := s.service.AbandonExpiredSessions(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("Sweep failed", "error", err, "abandoned", abandoned, "duration", time.Since(start))
		return
	}
	s.logger.Debug("Sweep finished", "abandoned", abandoned, "duration", time.Since(start))
}
