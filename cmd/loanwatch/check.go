package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func checkCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "check [address]",
		Short: "Fetches one position, evaluates it and prints the result",
		Args:  cobra.MaximumNArgs(1),
		RunE:  checkFunc,
	}
	c.Flags().Bool(jsonFlag, false, "Print the evaluation as JSON")
	c.Flags().Float64(borrowFlag, 0, "Additional borrow to simulate")
	return c
}

func checkFunc(c *cobra.Command, args []string) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	address := cfg.Refresh.Address
	if len(args) == 1 {
		address = args[0]
	}

	r, _ := newRefresher(cfg)
	ctx := c.Context()

	// A missing price still yields interest figures, so only the position
	// fetch decides the exit status.
	if res := r.RefreshPrice(ctx); !res.OK() {
		fmt.Fprintf(c.ErrOrStderr(), "warning: price unavailable: %v\n", res.Err)
	}

	res := r.Refresh(ctx, address)
	if !res.OK() {
		msg := res.Outcome.Message()
		if res.Err != nil {
			return fmt.Errorf("%s: %w", msg, res.Err)
		}
		return errors.New(msg)
	}

	ev := *res.Evaluation
	if amount, _ := c.Flags().GetFloat64(borrowFlag); amount > 0 {
		ev = *r.SetAdditionalBorrow(ctx, amount).Evaluation
	}

	if asJSON, _ := c.Flags().GetBool(jsonFlag); asJSON {
		return writeJSON(c.OutOrStdout(), ev)
	}
	return writeEvaluation(c.OutOrStdout(), ev)
}
