package recalc

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/fieldalloc/core/logger"
)

// Scheduler runs recalculation batches on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	runner  *Runner
	log     logger.Logger
	timeout time.Duration
}

// NewScheduler registers the configured schedules. A schedule left empty
// is not registered.
func NewScheduler(runner *Runner, cfg Config, log logger.Logger) (*Scheduler, error) {
	cfg.SetDefaults()
	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		runner:  runner,
		log:     logger.OrNop(log),
		timeout: cfg.Timeout,
	}
	if err := s.add(cfg.AreaSchedule, KindArea, runner.RunAreas); err != nil {
		return nil, err
	}
	if err := s.add(cfg.CustomerSchedule, KindCustomer, runner.RunCustomers); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) add(spec, kind string, fn func(context.Context) (Result, error)) error {
	if spec == "" {
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := fn(ctx); err != nil {
			s.log.Errorf("scheduled %s recalculation: %v", kind, err)
		}
	})
	if err != nil {
		return fmt.Errorf("recalc: %s schedule %q: %w", kind, spec, err)
	}
	return nil
}

// Entries reports how many schedules are registered.
func (s *Scheduler) Entries() int { return len(s.cron.Entries()) }

// Start begins running schedules in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infof("recalc scheduler started with %d schedule(s)", s.Entries())
}

// Stop halts the scheduler and waits for running batches up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warnf("recalc scheduler stop: %v", ctx.Err())
	}
}
