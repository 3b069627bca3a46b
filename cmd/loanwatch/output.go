package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"loanwatch/models"
)

const jsonFlag = "json"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

// writeEvaluation prints the evaluation as an aligned two column report.
func writeEvaluation(w io.Writer, ev models.Evaluation) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	s, m, i := ev.Snapshot, ev.Metrics, ev.Interest

	if s.Address != "" {
		fmt.Fprintf(tw, "Address\t%s\n", s.Address)
	}
	if s.PositionAddress != "" {
		fmt.Fprintf(tw, "Position contract\t%s\n", s.PositionAddress)
	}
	fmt.Fprintf(tw, "Collateral\t%.4f ALPH\n", s.CollateralAmount)
	fmt.Fprintf(tw, "Price\t%s\n", optional(s.CollateralPriceUSD, "$%.4f"))
	fmt.Fprintf(tw, "Borrowed\t%.4f\n", s.ExistingBorrowed)
	if s.AdditionalBorrow > 0 {
		fmt.Fprintf(tw, "Additional borrow\t%.4f\n", s.AdditionalBorrow)
	}
	fmt.Fprintf(tw, "Interest rate\t%.2f%%\n", s.InterestRateAPRPercent)

	if m.Available {
		fmt.Fprintf(tw, "Collateral value\t$%.2f\n", m.TotalCollateralValueUSD)
		fmt.Fprintf(tw, "Max additional borrow\t%.4f\n", m.MaxAdditionalBorrow)
	}
	fmt.Fprintf(tw, "Collateralization ratio\t%s\n", optional(m.CollateralizationRatioPercent, "%.2f%%"))
	fmt.Fprintf(tw, "Liquidation price\t%s\n", optional(m.LiquidationPriceUSD, "$%.4f"))
	fmt.Fprintf(tw, "Safety margin\t%s\n", optional(m.SafetyMarginPercent, "%.2f%%"))
	if tier := m.DisplayTier(); tier != models.TierNone {
		fmt.Fprintf(tw, "Risk tier\t%s\n", tier)
	}
	if m.Message != "" {
		fmt.Fprintf(tw, "Assessment\t%s\n", m.Message)
	}
	priced := s.CollateralPriceUSD != nil && *s.CollateralPriceUSD > 0
	for _, row := range []struct {
		label            string
		amount, inCollat float64
		amountFmt        string
	}{
		{"Interest daily", i.Daily, i.DailyCollateral, "%.6f"},
		{"Interest monthly", i.Monthly, i.MonthlyCollateral, "%.4f"},
		{"Interest yearly", i.Yearly, i.YearlyCollateral, "%.4f"},
	} {
		line := fmt.Sprintf(row.amountFmt, row.amount)
		if priced {
			line += fmt.Sprintf(" (%.6f ALPH)", row.inCollat)
		}
		fmt.Fprintf(tw, "%s\t%s\n", row.label, line)
	}
	fmt.Fprintf(tw, "Repayment after one year\t%.4f\n", i.TotalRepaymentAfterYear)
	return tw.Flush()
}
