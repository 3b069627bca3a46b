package main

import (
	"github.com/spf13/cobra"

	"loanwatch/internal/engine"
	"loanwatch/models"
)

const (
	collateralFlag = "collateral"
	priceFlag      = "price"
	borrowedFlag   = "borrowed"
	borrowFlag     = "borrow"
	rateFlag       = "rate"
	minRatioFlag   = "min-ratio"
)

func calcCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "calc",
		Short: "Evaluates a hypothetical position without any network access",
		Args:  cobra.NoArgs,
		RunE:  calcFunc,
	}
	flags := c.Flags()
	flags.Float64(collateralFlag, 0, "Collateral amount in ALPH")
	flags.Float64(priceFlag, 0, "Collateral price in USD (0 leaves it unknown)")
	flags.Float64(borrowedFlag, 0, "Amount already borrowed")
	flags.Float64(borrowFlag, 0, "Additional amount to borrow")
	flags.Float64(rateFlag, 5, "Interest rate, APR in percent")
	flags.Float64(minRatioFlag, engine.DefaultMinCollateralRatio, "Minimum collateralization ratio in percent")
	flags.Bool(jsonFlag, false, "Print the evaluation as JSON")
	return c
}

func calcFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	collateral, _ := flags.GetFloat64(collateralFlag)
	price, _ := flags.GetFloat64(priceFlag)
	borrowed, _ := flags.GetFloat64(borrowedFlag)
	additional, _ := flags.GetFloat64(borrowFlag)
	rate, _ := flags.GetFloat64(rateFlag)
	minRatio, _ := flags.GetFloat64(minRatioFlag)

	snap := models.PositionSnapshot{
		CollateralAmount:       collateral,
		ExistingBorrowed:       borrowed,
		AdditionalBorrow:       additional,
		InterestRateAPRPercent: rate,
	}
	if flags.Changed(priceFlag) {
		snap.CollateralPriceUSD = &price
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	ev := engine.New(minRatio).Evaluate(snap)
	if asJSON, _ := flags.GetBool(jsonFlag); asJSON {
		return writeJSON(c.OutOrStdout(), ev)
	}
	return writeEvaluation(c.OutOrStdout(), ev)
}
