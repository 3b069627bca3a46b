package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loanwatch/config"
	"loanwatch/logger"
)

// Scheduler drives the two periodic triggers of a Refresher: a fixed price
// poll and a position check that fires AutoRefresh.
type Scheduler struct {
	refresher     *Refresher
	priceInterval time.Duration
	pollInterval  time.Duration

	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	log     *logger.Log
}

func NewScheduler(cfg *config.Config, r *Refresher) *Scheduler {
	return &Scheduler{
		refresher:     r,
		priceInterval: cfg.Refresh.PriceInterval,
		pollInterval:  cfg.Refresh.PollInterval,
		log:           logger.GetLogger(),
	}
}

// Start fetches the price once, then launches the polling goroutines. They
// run until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if s.priceInterval <= 0 || s.pollInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.log.WithComponent("scheduler").WithFields(logger.Fields{
		"price_interval": s.priceInterval.String(),
		"poll_interval":  s.pollInterval.String(),
	}).Info("starting scheduler")

	s.wg.Add(2)
	go s.loop(ctx, "price", s.priceInterval, true, s.pollPrice)
	go s.loop(ctx, "position", s.pollInterval, false, s.pollPosition)
	return nil
}

// Stop cancels the polling goroutines and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.log.WithComponent("scheduler").Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, immediate bool, tick func(context.Context)) {
	defer s.wg.Done()
	if immediate {
		tick(ctx)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.WithComponent("scheduler").WithFields(logger.Fields{"worker": name}).Debug("worker stopped due to context cancellation")
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func (s *Scheduler) pollPrice(ctx context.Context) {
	if res := s.refresher.RefreshPrice(ctx); !res.OK() && ctx.Err() == nil {
		s.log.WithComponent("scheduler").WithError(res.Err).Warn("scheduled price refresh failed")
	}
}

func (s *Scheduler) pollPosition(ctx context.Context) {
	res, fired := s.refresher.AutoRefresh(ctx)
	if !fired || ctx.Err() != nil {
		return
	}
	if res.Outcome == OutcomeFailed {
		s.log.WithComponent("scheduler").WithError(res.Err).WithFields(logger.Fields{
			"address":    res.Address,
			"refresh_id": res.ID,
		}).Warn("auto refresh failed")
	}
}
