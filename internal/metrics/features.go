package metrics

import (
	"strings"
	"sync/atomic"

	"loanwatch/config"
)

// Feature is a family of metrics that can be switched off in configuration.
type Feature int

const (
	FeatureAlways Feature = iota
	FeaturePosition
	FeatureRefresh
)

var (
	positionEnabled atomic.Bool
	refreshEnabled  atomic.Bool
)

func init() {
	positionEnabled.Store(true)
	refreshEnabled.Store(true)
}

// Configure applies the metric family switches from cfg.
func Configure(cfg config.MetricsConfig) {
	positionEnabled.Store(cfg.Position)
	refreshEnabled.Store(cfg.Refresh)
}

func IsFeatureEnabled(f Feature) bool {
	switch f {
	case FeaturePosition:
		return positionEnabled.Load()
	case FeatureRefresh:
		return refreshEnabled.Load()
	default:
		return true
	}
}

func featureFor(name string) Feature {
	switch {
	case strings.HasPrefix(name, "position_"):
		return FeaturePosition
	case strings.HasPrefix(name, "refresh_"), strings.HasPrefix(name, "price_"):
		return FeatureRefresh
	default:
		return FeatureAlways
	}
}
