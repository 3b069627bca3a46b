package models

import (
	"fmt"
	"math"
	"time"
)

// PositionSnapshot holds the raw inputs of a loan position as last fetched
// or edited. A nil CollateralPriceUSD means the price has not been fetched yet.
type PositionSnapshot struct {
	Address                string    `json:"address,omitempty"`
	PositionAddress        string    `json:"position_address,omitempty"`
	CollateralAmount       float64   `json:"collateral_amount"`
	CollateralPriceUSD     *float64  `json:"collateral_price_usd"`
	ExistingBorrowed       float64   `json:"existing_borrowed"`
	AdditionalBorrow       float64   `json:"additional_borrow"`
	InterestRateAPRPercent float64   `json:"interest_rate_apr_percent"`
	FetchedAt              time.Time `json:"fetched_at,omitempty"`
}

// Validate reports whether every amount is a non-negative finite number.
func (s PositionSnapshot) Validate() error {
	amounts := map[string]float64{
		"collateral_amount":         s.CollateralAmount,
		"existing_borrowed":         s.ExistingBorrowed,
		"additional_borrow":         s.AdditionalBorrow,
		"interest_rate_apr_percent": s.InterestRateAPRPercent,
	}
	for name, v := range amounts {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%s must be a non-negative finite number, got %v", name, v)
		}
	}
	if s.CollateralPriceUSD != nil {
		p := *s.CollateralPriceUSD
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return fmt.Errorf("collateral_price_usd must be positive, got %v", p)
		}
	}
	return nil
}

// HasPrice reports whether a usable collateral price is present.
func (s PositionSnapshot) HasPrice() bool {
	return s.CollateralPriceUSD != nil && *s.CollateralPriceUSD > 0
}

// TotalBorrowed is the existing debt plus the additional borrow being considered.
func (s PositionSnapshot) TotalBorrowed() float64 {
	return s.ExistingBorrowed + s.AdditionalBorrow
}

// RiskTier classifies a position's health.
type RiskTier string

const (
	TierNone             RiskTier = ""
	TierSafe             RiskTier = "SAFE"
	TierCaution          RiskTier = "CAUTION"
	TierWarning          RiskTier = "WARNING"
	TierDanger           RiskTier = "DANGER"
	TierBelowLiquidation RiskTier = "BELOW_LIQUIDATION"
)

func (t RiskTier) String() string {
	if t == TierNone {
		return "NONE"
	}
	return string(t)
}

// RiskMetrics are derived from a PositionSnapshot. When Available is false
// the snapshot lacked collateral or price and every other field is zero.
// The ratio, liquidation price and safety margin are nil when nothing is borrowed.
type RiskMetrics struct {
	Available                     bool     `json:"available"`
	TotalCollateralValueUSD       float64  `json:"total_collateral_value_usd"`
	TotalBorrowed                 float64  `json:"total_borrowed"`
	MaxAdditionalBorrow           float64  `json:"max_additional_borrow"`
	CollateralizationRatioPercent *float64 `json:"collateralization_ratio_percent"`
	LiquidationPriceUSD           *float64 `json:"liquidation_price_usd"`
	SafetyMarginPercent           *float64 `json:"safety_margin_percent"`
	RiskTier                      RiskTier `json:"risk_tier"`
	MarginTier                    RiskTier `json:"margin_tier"`
	AdditionalCollateralNeeded    float64  `json:"additional_collateral_needed"`
	Message                       string   `json:"message,omitempty"`
}

// HasDebt reports whether ratio, liquidation price and margin were computed.
func (m RiskMetrics) HasDebt() bool {
	return m.CollateralizationRatioPercent != nil
}

// DisplayTier is the tier a view should show: a position below its
// liquidation price is flagged as such whatever its ratio tier.
func (m RiskMetrics) DisplayTier() RiskTier {
	if m.MarginTier == TierBelowLiquidation {
		return TierBelowLiquidation
	}
	return m.RiskTier
}

// InterestBreakdown is simple interest on a borrowed amount over fixed periods.
// The *Collateral fields restate it in collateral units at the snapshot
// price and stay zero without one.
type InterestBreakdown struct {
	Daily                   float64 `json:"daily"`
	Monthly                 float64 `json:"monthly"`
	Yearly                  float64 `json:"yearly"`
	TotalRepaymentAfterYear float64 `json:"total_repayment_after_year"`

	DailyCollateral   float64 `json:"daily_collateral"`
	MonthlyCollateral float64 `json:"monthly_collateral"`
	YearlyCollateral  float64 `json:"yearly_collateral"`
}

// PriceQuote is a collateral price observation.
type PriceQuote struct {
	PriceUSD float64   `json:"price_usd"`
	AsOf     time.Time `json:"as_of"`
}

// Evaluation bundles a snapshot with everything derived from it. It is the
// only structure handed to rendering layers.
type Evaluation struct {
	Snapshot PositionSnapshot  `json:"snapshot"`
	Metrics  RiskMetrics       `json:"metrics"`
	Interest InterestBreakdown `json:"interest"`
	Price    *PriceQuote       `json:"price,omitempty"`
}
