package refresher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanwatch/config"
	"loanwatch/internal/engine"
)

func TestSchedulerFetchesPriceAndAutoRefreshes(t *testing.T) {
	cfg := config.Default()
	cfg.Refresh.PriceInterval = 20 * time.Millisecond
	cfg.Refresh.PollInterval = 5 * time.Millisecond
	cfg.Refresh.PositionInterval = 5 * time.Millisecond

	src := newFakeSources()
	r := New(&cfg, Sources{Collateral: src, Locator: src, Positions: src, Prices: src}, engine.New(200))
	rec := &recorder{}
	r.Subscribe(rec)
	r.Session().setAddress(wallet)

	s := NewScheduler(&cfg, r)
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "second start must fail")

	require.Eventually(t, func() bool {
		ev, ok := r.Session().Evaluation()
		return ok && ev.Price != nil && ev.Metrics.HasDebt()
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()

	rec.mu.Lock()
	count := len(rec.results)
	var sawAuto bool
	for _, res := range rec.results {
		if res.Trigger == TriggerAuto {
			sawAuto = true
		}
	}
	rec.mu.Unlock()
	assert.True(t, sawAuto)

	time.Sleep(30 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, count, len(rec.results), "no work after Stop")
}

func TestSchedulerRejectsZeroIntervals(t *testing.T) {
	cfg := config.Default()
	cfg.Refresh.PollInterval = 0
	s := NewScheduler(&cfg, New(&cfg, Sources{}, engine.New(200)))
	assert.Error(t, s.Start(context.Background()))
}
