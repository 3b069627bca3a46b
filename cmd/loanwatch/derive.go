package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loanwatch/internal/codec"
)

func deriveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "derive <contract-id>",
		Short: "Converts a hex contract id into its base58 contract address",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			address, err := codec.DeriveAddress(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.OutOrStdout(), address)
			return err
		},
	}
}
