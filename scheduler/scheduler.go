package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"staywatch/config"
	"staywatch/engine"
)

// defaultPollInterval bounds how long a due search waits before the
// scheduler picks it up when no explicit schedule is configured.
const defaultPollInterval = time.Minute

// Scheduler periodically hands due searches to the engine. A cron
// expression takes precedence over a fixed interval; with neither set it
// falls back to polling every minute.
type Scheduler struct {
	cfg    *config.SchedulerConfig
	engine *engine.Engine
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
}

func New(cfg *config.SchedulerConfig, eng *engine.Engine) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: eng,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Cron)
		_, err := s.cron.AddFunc(s.cfg.Cron, func() {
			s.runDue(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	log.Printf("Starting scheduler with interval: %s", interval)
	s.ticker = time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.ticker.C:
				s.runDue(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// TriggerNow runs all due searches immediately, outside the schedule.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.engine.ExecuteAllDueSearches(ctx)
}

func (s *Scheduler) runDue(ctx context.Context) {
	if err := s.engine.ExecuteAllDueSearches(ctx); err != nil {
		log.Printf("Scheduled run error: %v", err)
	}
}
