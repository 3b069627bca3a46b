package metrics

import (
	"context"

	"loanwatch/internal/refresher"
	"loanwatch/logger"
	"loanwatch/models"
)

const component = "refresher"

// Observe is a refresher.Observer that turns results into metrics. Position
// gauges follow the on-chain evaluation, never an additional-borrow what-if.
func Observe(_ context.Context, res refresher.Result) {
	log := logger.GetLogger()
	ReportRefresh(log, res)
	if res.OK() && res.OnChain != nil {
		ReportEvaluation(log, res.Address, *res.OnChain)
	}
}

// ReportRefresh counts one refresher operation.
func ReportRefresh(log *logger.Log, res refresher.Result) {
	Init()
	refreshTotal.WithLabelValues(string(res.Trigger), string(res.Outcome)).Inc()
	EmitMetric(log, component, "refresh_total", 1, "counter", logger.Fields{
		"trigger": string(res.Trigger),
		"outcome": string(res.Outcome),
		"unit":    "count",
	})
	if res.Duration > 0 {
		EmitMetric(log, component, "refresh_duration_ms", res.Duration.Milliseconds(), "gauge", logger.Fields{
			"trigger": string(res.Trigger),
			"unit":    "milliseconds",
		})
	}
}

// ReportEvaluation publishes the risk figures of ev. Figures that are
// undefined for the evaluation are removed from the Prometheus gauges.
func ReportEvaluation(log *logger.Log, address string, ev models.Evaluation) {
	Init()
	if ev.Price != nil && IsFeatureEnabled(FeatureRefresh) {
		collateralPrice.Set(ev.Price.PriceUSD)
		EmitMetric(log, component, "price_collateral_usd", ev.Price.PriceUSD, "gauge", logger.Fields{"unit": "usd"})
	}
	if address == "" || !IsFeatureEnabled(FeaturePosition) {
		return
	}

	m := ev.Metrics
	if !m.Available {
		for name := range positionGauges {
			deletePositionGauge(name, address)
		}
		return
	}

	values := map[string]*float64{
		gaugeRatio:          m.CollateralizationRatioPercent,
		gaugeLiquidation:    m.LiquidationPriceUSD,
		gaugeSafetyMargin:   m.SafetyMarginPercent,
		gaugeTotalBorrowed:  &m.TotalBorrowed,
		gaugeCollateral:     &m.TotalCollateralValueUSD,
		gaugeMaxAdditional:  &m.MaxAdditionalBorrow,
		gaugeCollateralUnit: &ev.Snapshot.CollateralAmount,
	}
	for name, v := range values {
		if v == nil {
			deletePositionGauge(name, address)
			continue
		}
		setPositionGauge(name, address, *v)
		EmitMetric(log, component, "position_"+name, *v, "gauge", logger.Fields{
			"address": address,
			"unit":    unitFor(name),
		})
	}
}

// ReportDrop counts a message dropped from buffer.
func ReportDrop(log *logger.Log, metric DropMetric, address string) {
	Init()
	droppedTotal.WithLabelValues(string(metric)).Inc()
	EmitDropMetric(log, metric, address, "enqueue")
}

func unitFor(name string) string {
	switch name {
	case gaugeRatio, gaugeSafetyMargin:
		return "percent"
	case gaugeLiquidation, gaugeCollateral:
		return "usd"
	default:
		return "none"
	}
}
