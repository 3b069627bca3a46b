package engine

import "loanwatch/models"

// Engine evaluates snapshots against a fixed minimum collateral ratio.
type Engine struct {
	MinCollateralRatioPercent float64
}

// New returns an Engine; a non-positive ratio selects DefaultMinCollateralRatio.
func New(minCollateralRatioPercent float64) Engine {
	if !(minCollateralRatioPercent > 0) {
		minCollateralRatioPercent = DefaultMinCollateralRatio
	}
	return Engine{MinCollateralRatioPercent: minCollateralRatioPercent}
}

// Evaluate recomputes every derived value of s. Interest accrues on the
// total borrowed, existing plus additional.
func (e Engine) Evaluate(s models.PositionSnapshot) models.Evaluation {
	metrics := ComputeRiskMetrics(s.CollateralAmount, s.CollateralPriceUSD, s.ExistingBorrowed, s.AdditionalBorrow, e.MinCollateralRatioPercent)
	interest := ComputeInterestBreakdown(nonNegative(s.TotalBorrowed()), s.InterestRateAPRPercent)
	return models.Evaluation{
		Snapshot: s,
		Metrics:  metrics,
		Interest: InCollateralUnits(interest, s.CollateralPriceUSD),
	}
}
