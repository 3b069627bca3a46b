// Package engine computes loan-health metrics. Every function is pure and
// safe for concurrent use.
package engine

import (
	"fmt"
	"math"

	"loanwatch/models"
)

// DefaultMinCollateralRatio is the protocol minimum collateralization, in percent.
const DefaultMinCollateralRatio = 200.0

// Ratio thresholds, in percent, evaluated from the top.
const (
	ratioVeryHealthy = 300.0
	ratioHealthy     = 250.0
	ratioCaution     = 225.0
)

// Safety margin thresholds, as the percentage price drop left before liquidation.
const (
	marginSafe    = 25.0
	marginCaution = 12.5
)

// ComputeRiskMetrics derives the health of a position. A nil or non-positive
// price, or no collateral, yields metrics with Available unset.
func ComputeRiskMetrics(collateralAmount float64, collateralPriceUSD *float64, existingBorrowed, additionalBorrow, minCollateralRatioPercent float64) models.RiskMetrics {
	if !(minCollateralRatioPercent > 0) || math.IsInf(minCollateralRatioPercent, 0) {
		minCollateralRatioPercent = DefaultMinCollateralRatio
	}
	if !finitePositive(collateralAmount) || collateralPriceUSD == nil || !finitePositive(*collateralPriceUSD) {
		return models.RiskMetrics{}
	}
	existingBorrowed = nonNegative(existingBorrowed)
	additionalBorrow = nonNegative(additionalBorrow)
	price := *collateralPriceUSD

	totalValue := collateralAmount * price
	maxBorrow := totalValue * 100 / minCollateralRatioPercent
	totalBorrowed := existingBorrowed + additionalBorrow

	m := models.RiskMetrics{
		Available:               true,
		TotalCollateralValueUSD: totalValue,
		TotalBorrowed:           totalBorrowed,
		MaxAdditionalBorrow:     math.Max(0, maxBorrow-existingBorrowed),
	}
	if totalBorrowed <= 0 {
		return m
	}

	ratio := totalValue / totalBorrowed * 100
	liquidationPrice := totalBorrowed * minCollateralRatioPercent / (collateralAmount * 100)
	priceDrop := (price - liquidationPrice) / price * 100

	m.CollateralizationRatioPercent = &ratio
	m.LiquidationPriceUSD = &liquidationPrice
	m.SafetyMarginPercent = &priceDrop

	switch {
	case ratio >= ratioVeryHealthy:
		m.RiskTier = models.TierSafe
		m.Message = "Safe: Very healthy collateral ratio"
	case ratio >= ratioHealthy:
		m.RiskTier = models.TierSafe
		m.Message = "Safe: Good collateral ratio"
	case ratio >= ratioCaution:
		m.RiskTier = models.TierCaution
		m.Message = fmt.Sprintf("Caution: Collateral ratio below %.0f%%", ratioHealthy)
	case ratio >= minCollateralRatioPercent:
		m.RiskTier = models.TierWarning
		m.Message = fmt.Sprintf("Warning: Collateral ratio below %.0f%%", ratioCaution)
	default:
		m.RiskTier = models.TierDanger
		m.AdditionalCollateralNeeded = totalBorrowed*minCollateralRatioPercent/(100*price) - collateralAmount
		m.Message = fmt.Sprintf("Danger: Need %.2f more collateral to reach minimum %.0f%%", m.AdditionalCollateralNeeded, minCollateralRatioPercent)
	}
	m.MarginTier = marginTier(priceDrop)
	return m
}

func marginTier(priceDrop float64) models.RiskTier {
	switch {
	case priceDrop <= 0:
		return models.TierBelowLiquidation
	case priceDrop >= marginSafe:
		return models.TierSafe
	case priceDrop >= marginCaution:
		return models.TierCaution
	default:
		return models.TierWarning
	}
}

// ClampAdditionalBorrow bounds a user-entered borrow to the whole units
// still borrowable.
func ClampAdditionalBorrow(value, maxAdditional float64) float64 {
	if !(value > 0) {
		return 0
	}
	limit := math.Floor(nonNegative(maxAdditional))
	if value > limit {
		return limit
	}
	return value
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func nonNegative(v float64) float64 {
	if !(v > 0) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
