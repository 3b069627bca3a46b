package engine

import "loanwatch/models"

const (
	DaysPerYear  = 365
	DaysPerMonth = 30

	// percentDaysPerYear converts an APR in percent into a daily fraction.
	percentDaysPerYear = 100 * DaysPerYear
)

// ComputeInterest prorates an annual percentage rate over days. It is
// simple interest, never compounded.
func ComputeInterest(borrowed, aprPercent float64, days int) float64 {
	if !(borrowed > 0) || !(aprPercent > 0) {
		return 0
	}
	return borrowed * (aprPercent / percentDaysPerYear) * float64(days)
}

// ComputeYearlyRepayment is the amount owed after one year.
func ComputeYearlyRepayment(borrowed, aprPercent float64) float64 {
	if !(borrowed > 0) || !(aprPercent > 0) {
		return borrowed
	}
	return borrowed + ComputeInterest(borrowed, aprPercent, DaysPerYear)
}

func ComputeInterestBreakdown(borrowed, aprPercent float64) models.InterestBreakdown {
	yearly := ComputeInterest(borrowed, aprPercent, DaysPerYear)
	return models.InterestBreakdown{
		Daily:                   ComputeInterest(borrowed, aprPercent, 1),
		Monthly:                 ComputeInterest(borrowed, aprPercent, DaysPerMonth),
		Yearly:                  yearly,
		TotalRepaymentAfterYear: borrowed + yearly,
	}
}

// InCollateralUnits fills the collateral-unit equivalents of b at priceUSD.
func InCollateralUnits(b models.InterestBreakdown, priceUSD *float64) models.InterestBreakdown {
	b.DailyCollateral = ToCollateralUnits(b.Daily, priceUSD)
	b.MonthlyCollateral = ToCollateralUnits(b.Monthly, priceUSD)
	b.YearlyCollateral = ToCollateralUnits(b.Yearly, priceUSD)
	return b
}

// ToCollateralUnits converts a debt-denominated amount into collateral units
// at the given price. Without a price the result is 0.
func ToCollateralUnits(amount float64, priceUSD *float64) float64 {
	if priceUSD == nil || !(*priceUSD > 0) {
		return 0
	}
	return amount / *priceUSD
}
