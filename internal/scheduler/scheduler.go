package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/evarantes/codexia-app/internal/config"
)

// Service runs the two periodic loops: queue processing and publish
// checking. Both share one lifecycle so Stop drains everything.
type Service struct {
	log     *slog.Logger
	cfg     config.SchedulerConfig
	queue   *QueueProcessor
	publish *PublishChecker // nil when no publisher is configured
	sweep   *RecoverySweep

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(log *slog.Logger, cfg config.SchedulerConfig, queue *QueueProcessor, publish *PublishChecker, sweep *RecoverySweep) *Service {
	return &Service{
		log:     log,
		cfg:     cfg,
		queue:   queue,
		publish: publish,
		sweep:   sweep,
	}
}

// Start runs the recovery sweep synchronously, then launches the loops.
// The publish loop fires immediately on start so overdue uploads are not
// delayed by a full interval after a restart.
func (s *Service) Start(ctx context.Context) error {
	if err := s.sweep.Run(); err != nil {
		return err
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.queueLoop(ctx)

	if s.publish != nil {
		s.wg.Add(1)
		go s.publishLoop(ctx)
	} else {
		s.log.Info("no publisher configured, publish loop disabled")
	}
	return nil
}

// Stop cancels the loops and waits for any in-flight tick to finish.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Service) queueLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.QueueInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.queue.Tick(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("queue tick failed", "err", err)
			}
		}
	}
}

func (s *Service) publishLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PublishInterval)
	defer ticker.Stop()
	// First check runs immediately.
	for {
		if err := s.publish.Tick(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
			s.log.Error("publish tick failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
