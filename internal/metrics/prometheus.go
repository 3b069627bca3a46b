package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registers on a dedicated registry:
//
//	loanwatch_position_* gauges labelled by address
//	loanwatch_collateral_price_usd
//	loanwatch_refresh_total{trigger,outcome}
//	loanwatch_messages_dropped_total{buffer}
//	go_* and process_* system metrics
var (
	once     sync.Once
	registry *prometheus.Registry

	positionGauges  map[string]*prometheus.GaugeVec
	collateralPrice prometheus.Gauge
	refreshTotal    *prometheus.CounterVec
	droppedTotal    *prometheus.CounterVec
)

const (
	gaugeRatio          = "collateralization_ratio_percent"
	gaugeLiquidation    = "liquidation_price_usd"
	gaugeSafetyMargin   = "safety_margin_percent"
	gaugeTotalBorrowed  = "total_borrowed"
	gaugeCollateral     = "collateral_value_usd"
	gaugeMaxAdditional  = "max_additional_borrow"
	gaugeCollateralUnit = "collateral_amount"
)

var positionGaugeHelp = map[string]string{
	gaugeRatio:          "Collateral value over total borrowed, in percent",
	gaugeLiquidation:    "Collateral price at which the minimum ratio is reached",
	gaugeSafetyMargin:   "Price drop in percent before liquidation",
	gaugeTotalBorrowed:  "Amount borrowed by the on-chain position",
	gaugeCollateral:     "Collateral value in USD",
	gaugeMaxAdditional:  "Additional amount borrowable at the minimum ratio",
	gaugeCollateralUnit: "Collateral locked, in collateral asset units",
}

// Init creates the Prometheus collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		positionGauges = make(map[string]*prometheus.GaugeVec, len(positionGaugeHelp))
		for name, help := range positionGaugeHelp {
			g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "loanwatch",
				Subsystem: "position",
				Name:      name,
				Help:      help,
			}, []string{"address"})
			positionGauges[name] = g
			registry.MustRegister(g)
		}

		collateralPrice = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "loanwatch",
			Name:      "collateral_price_usd",
			Help:      "Last collateral price received from the oracle",
		})
		refreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loanwatch",
			Name:      "refresh_total",
			Help:      "Refresher operations by trigger and outcome",
		}, []string{"trigger", "outcome"})
		droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "loanwatch",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped because a buffer was full",
		}, []string{"buffer"})

		registry.MustRegister(collateralPrice, refreshTotal, droppedTotal)
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func setPositionGauge(name, address string, value float64) {
	if g, ok := positionGauges[name]; ok {
		g.WithLabelValues(address).Set(value)
	}
}

func deletePositionGauge(name, address string) {
	if g, ok := positionGauges[name]; ok {
		g.DeleteLabelValues(address)
	}
}
