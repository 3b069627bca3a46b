package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loanwatch/internal/engine"
	"loanwatch/internal/refresher"
	"loanwatch/logger"
	"loanwatch/models"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read scrape: %v", err)
	}
	return string(body)
}

func evaluation(borrowed float64) models.Evaluation {
	price := 20.0
	ev := engine.New(200).Evaluate(models.PositionSnapshot{
		CollateralAmount:   10,
		CollateralPriceUSD: &price,
		ExistingBorrowed:   borrowed,
	})
	ev.Price = &models.PriceQuote{PriceUSD: price, AsOf: time.Now()}
	return ev
}

func TestObserveExportsPositionGauges(t *testing.T) {
	resetMetricHandlers()
	events := make(chan Metric, 32)
	id := RegisterMetricHandler(func(m Metric) { events <- m })
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	ev := evaluation(50)
	Observe(context.Background(), refresher.Result{
		Address:    "wallet-metrics",
		Trigger:    refresher.TriggerManual,
		Outcome:    refresher.OutcomeSuccess,
		Evaluation: &ev,
		OnChain:    &ev,
		Duration:   15 * time.Millisecond,
	})

	body := scrape(t)
	for _, want := range []string{
		`loanwatch_position_collateralization_ratio_percent{address="wallet-metrics"} 400`,
		`loanwatch_position_liquidation_price_usd{address="wallet-metrics"} 10`,
		`loanwatch_collateral_price_usd 20`,
		`loanwatch_refresh_total{outcome="success",trigger="manual"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape missing %q", want)
		}
	}

	seen := map[string]bool{}
	close(events)
	for m := range events {
		seen[m.Name] = true
	}
	for _, name := range []string{"refresh_total", "refresh_duration_ms", "price_collateral_usd", "position_collateralization_ratio_percent"} {
		if !seen[name] {
			t.Fatalf("metric %s not dispatched, got %v", name, seen)
		}
	}
}

func TestObserveKeepsGaugesOnChainDuringBorrowWhatIf(t *testing.T) {
	onChain := evaluation(50)
	Observe(context.Background(), refresher.Result{
		Address:    "wallet-whatif",
		Trigger:    refresher.TriggerManual,
		Outcome:    refresher.OutcomeSuccess,
		Evaluation: &onChain,
		OnChain:    &onChain,
	})

	whatIf := evaluation(150)
	Observe(context.Background(), refresher.Result{
		Address:    "wallet-whatif",
		Trigger:    refresher.TriggerBorrow,
		Outcome:    refresher.OutcomeSuccess,
		Evaluation: &whatIf,
	})

	body := scrape(t)
	if !strings.Contains(body, `loanwatch_position_total_borrowed{address="wallet-whatif"} 50`) {
		t.Fatal("borrow what-if overwrote the on-chain total borrowed gauge")
	}
	if !strings.Contains(body, `loanwatch_refresh_total{outcome="success",trigger="borrow"}`) {
		t.Fatal("borrow operation not counted")
	}
}

func TestReportEvaluationRemovesUndefinedGauges(t *testing.T) {
	log := logger.GetLogger()
	ReportEvaluation(log, "wallet-debt-free", evaluation(50))
	if !strings.Contains(scrape(t), `loanwatch_position_safety_margin_percent{address="wallet-debt-free"}`) {
		t.Fatal("expected safety margin gauge while in debt")
	}

	ReportEvaluation(log, "wallet-debt-free", evaluation(0))
	body := scrape(t)
	if strings.Contains(body, `loanwatch_position_safety_margin_percent{address="wallet-debt-free"}`) {
		t.Fatal("safety margin gauge should be removed without debt")
	}
	if !strings.Contains(body, `loanwatch_position_max_additional_borrow{address="wallet-debt-free"} 100`) {
		t.Fatal("max additional borrow gauge missing")
	}
}

func TestFeatureFor(t *testing.T) {
	cases := map[string]Feature{
		"position_total_borrowed": FeaturePosition,
		"refresh_total":           FeatureRefresh,
		"price_collateral_usd":    FeatureRefresh,
		"alert_messages_dropped":  FeatureAlways,
	}
	for name, want := range cases {
		if got := featureFor(name); got != want {
			t.Errorf("featureFor(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestRenderDashboardSubstitutesRegion(t *testing.T) {
	body, err := renderDashboard(&cloudWatchState{namespace: "LoanWatch", region: "us-east-1"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(body, "eu-central-1") || !strings.Contains(body, "us-east-1") {
		t.Fatal("region not substituted")
	}
}
