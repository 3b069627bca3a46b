package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanwatch/models"
)

func price(v float64) *float64 { return &v }

func TestComputeInterestMatchesYearlyRepayment(t *testing.T) {
	interest := ComputeInterest(1000, 10, 365)
	assert.InDelta(t, ComputeYearlyRepayment(1000, 10)-1000, interest, 1e-9)
	assert.InDelta(t, 100, interest, 1e-9)
}

func TestComputeInterestNonPositiveInputs(t *testing.T) {
	for _, d := range []int{0, 1, 30, 365, 1000} {
		assert.Zero(t, ComputeInterest(0, 10, d))
		assert.Zero(t, ComputeInterest(-5, 10, d))
		assert.Zero(t, ComputeInterest(100, 0, d))
		assert.Zero(t, ComputeInterest(100, -1, d))
		assert.Zero(t, ComputeInterest(math.NaN(), 10, d))
	}
}

func TestComputeYearlyRepaymentNonPositive(t *testing.T) {
	assert.Equal(t, 500.0, ComputeYearlyRepayment(500, 0))
	assert.Equal(t, -3.0, ComputeYearlyRepayment(-3, 5))
}

func TestComputeInterestBreakdown(t *testing.T) {
	b := ComputeInterestBreakdown(36500, 5)
	assert.InDelta(t, 5, b.Daily, 1e-9)
	assert.InDelta(t, 150, b.Monthly, 1e-9)
	assert.InDelta(t, 1825, b.Yearly, 1e-9)
	assert.InDelta(t, 38325, b.TotalRepaymentAfterYear, 1e-9)
}

func TestToCollateralUnits(t *testing.T) {
	assert.Zero(t, ToCollateralUnits(10, nil))
	assert.Zero(t, ToCollateralUnits(10, price(0)))
	assert.InDelta(t, 5, ToCollateralUnits(10, price(2)), 1e-12)
}

func TestRiskMetricsInsufficientData(t *testing.T) {
	m := ComputeRiskMetrics(0, price(20), 10, 0, 200)
	assert.False(t, m.Available)
	assert.Equal(t, models.RiskMetrics{}, m)

	m = ComputeRiskMetrics(10, nil, 10, 0, 200)
	assert.False(t, m.Available)

	m = ComputeRiskMetrics(math.Inf(1), price(20), 10, 0, 200)
	assert.False(t, m.Available)
}

func TestRiskMetricsNoDebt(t *testing.T) {
	m := ComputeRiskMetrics(10, price(20), 0, 0, 200)
	require.True(t, m.Available)
	assert.InDelta(t, 200, m.TotalCollateralValueUSD, 1e-9)
	assert.InDelta(t, 100, m.MaxAdditionalBorrow, 1e-9)
	assert.Zero(t, m.TotalBorrowed)
	assert.False(t, m.HasDebt())
	assert.Nil(t, m.CollateralizationRatioPercent)
	assert.Nil(t, m.LiquidationPriceUSD)
	assert.Nil(t, m.SafetyMarginPercent)
	assert.Equal(t, models.TierNone, m.RiskTier)
}

func TestRiskMetricsWarningAtMinimumBoundary(t *testing.T) {
	m := ComputeRiskMetrics(10, price(20), 90, 10, 200)
	require.True(t, m.HasDebt())
	assert.InDelta(t, 100, m.TotalBorrowed, 1e-9)
	assert.InDelta(t, 200, m.TotalCollateralValueUSD, 1e-9)
	assert.InDelta(t, 200, *m.CollateralizationRatioPercent, 1e-9)
	assert.Equal(t, models.TierWarning, m.RiskTier)
	assert.InDelta(t, 20, *m.LiquidationPriceUSD, 1e-9)
	assert.Equal(t, models.TierBelowLiquidation, m.MarginTier)
	assert.Equal(t, models.TierBelowLiquidation, m.DisplayTier())
	assert.InDelta(t, 10, m.MaxAdditionalBorrow, 1e-9)
}

func TestRiskMetricsDangerRoundTrip(t *testing.T) {
	p := price(1.5)
	m := ComputeRiskMetrics(1000, p, 900, 0, 200)
	require.True(t, m.HasDebt())
	require.Equal(t, models.TierDanger, m.RiskTier)
	require.Greater(t, m.AdditionalCollateralNeeded, 0.0)

	topped := ComputeRiskMetrics(1000+m.AdditionalCollateralNeeded, p, 900, 0, 200)
	assert.InDelta(t, 200, *topped.CollateralizationRatioPercent, 1e-9)
}

func TestRiskMetricsRatioTiers(t *testing.T) {
	cases := []struct {
		borrowed float64
		want     models.RiskTier
		message  string
	}{
		{50, models.TierSafe, "Safe: Very healthy collateral ratio"},    // 400%
		{75, models.TierSafe, "Safe: Good collateral ratio"},            // 266%
		{85, models.TierCaution, "Caution: Collateral ratio below 250%"}, // 235%
		{95, models.TierWarning, "Warning: Collateral ratio below 225%"}, // 210%
		{120, models.TierDanger, ""},                                     // 166%
	}
	for _, c := range cases {
		m := ComputeRiskMetrics(10, price(20), c.borrowed, 0, 200)
		assert.Equal(t, c.want, m.RiskTier, "borrowed %v", c.borrowed)
		if c.message != "" {
			assert.Equal(t, c.message, m.Message)
		}
	}
}

func TestRiskMetricsMarginTiers(t *testing.T) {
	cases := []struct {
		borrowed float64
		want     models.RiskTier
	}{
		{50, models.TierSafe},             // drop 50%
		{85, models.TierCaution},          // drop 15%
		{95, models.TierWarning},          // drop 5%
		{100, models.TierBelowLiquidation}, // drop 0%
		{150, models.TierBelowLiquidation}, // drop -50%
	}
	for _, c := range cases {
		m := ComputeRiskMetrics(10, price(20), c.borrowed, 0, 200)
		assert.Equal(t, c.want, m.MarginTier, "borrowed %v", c.borrowed)
	}
}

func TestBelowLiquidationIndependentOfRatioTier(t *testing.T) {
	// A higher minimum moves the liquidation price above market while the
	// ratio still sits in the healthy band.
	m := ComputeRiskMetrics(10, price(20), 70, 0, 300)
	assert.Equal(t, models.TierSafe, m.RiskTier)
	assert.LessOrEqual(t, *m.SafetyMarginPercent, 0.0)
	assert.Equal(t, models.TierBelowLiquidation, m.MarginTier)
	assert.Equal(t, models.TierBelowLiquidation, m.DisplayTier())
}

func TestRiskMetricsDefaultsMinimumRatio(t *testing.T) {
	a := ComputeRiskMetrics(10, price(20), 50, 0, 0)
	b := ComputeRiskMetrics(10, price(20), 50, 0, DefaultMinCollateralRatio)
	assert.Equal(t, b, a)
}

func TestMaxAdditionalBorrowNeverNegative(t *testing.T) {
	m := ComputeRiskMetrics(10, price(20), 500, 0, 200)
	assert.Zero(t, m.MaxAdditionalBorrow)
}

func TestClampAdditionalBorrow(t *testing.T) {
	assert.Zero(t, ClampAdditionalBorrow(-4, 100))
	assert.Equal(t, 40.0, ClampAdditionalBorrow(40, 100.7))
	assert.Equal(t, 100.0, ClampAdditionalBorrow(250, 100.7))
	assert.Zero(t, ClampAdditionalBorrow(math.NaN(), 100))
}

func TestEngineEvaluate(t *testing.T) {
	e := New(0)
	require.Equal(t, DefaultMinCollateralRatio, e.MinCollateralRatioPercent)

	s := models.PositionSnapshot{
		CollateralAmount:       10,
		CollateralPriceUSD:     price(20),
		ExistingBorrowed:       40,
		AdditionalBorrow:       10,
		InterestRateAPRPercent: 5,
	}
	ev := e.Evaluate(s)
	assert.Equal(t, s, ev.Snapshot)
	assert.InDelta(t, 400, *ev.Metrics.CollateralizationRatioPercent, 1e-9)
	assert.InDelta(t, 2.5, ev.Interest.Yearly, 1e-9)
	// 2.5 at 20 USD per unit
	assert.InDelta(t, 0.125, ev.Interest.YearlyCollateral, 1e-12)
	assert.InDelta(t, 2.5*30/365/20, ev.Interest.MonthlyCollateral, 1e-12)

	s.CollateralPriceUSD = nil
	ev = e.Evaluate(s)
	assert.InDelta(t, 2.5, ev.Interest.Yearly, 1e-9)
	assert.Zero(t, ev.Interest.DailyCollateral)
	assert.Zero(t, ev.Interest.YearlyCollateral)
}
