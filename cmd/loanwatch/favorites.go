package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loanwatch/internal/favorites"
)

func favoritesCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "favorites",
		Short: "Manages saved addresses and the dashboard theme",
	}
	c.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Lists saved addresses",
			Args:  cobra.NoArgs,
			RunE: withStore(func(c *cobra.Command, s *favorites.Store, _ []string) error {
				for _, a := range s.List() {
					fmt.Fprintf(c.OutOrStdout(), "%s\t%s\n", favorites.Label(a), a)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "add <address>",
			Short: "Saves an address",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(c *cobra.Command, s *favorites.Store, args []string) error {
				return s.Add(args[0])
			}),
		},
		&cobra.Command{
			Use:   "remove <address>",
			Short: "Removes a saved address",
			Args:  cobra.ExactArgs(1),
			RunE: withStore(func(c *cobra.Command, s *favorites.Store, args []string) error {
				return s.Remove(args[0])
			}),
		},
		&cobra.Command{
			Use:   "theme [light|dark]",
			Short: "Prints the theme, or sets it when an argument is given",
			Args:  cobra.MaximumNArgs(1),
			RunE: withStore(func(c *cobra.Command, s *favorites.Store, args []string) error {
				if len(args) == 1 {
					if err := s.SetTheme(args[0]); err != nil {
						return err
					}
				}
				_, err := fmt.Fprintln(c.OutOrStdout(), s.Theme())
				return err
			}),
		},
	)
	return c
}

func withStore(fn func(*cobra.Command, *favorites.Store, []string) error) func(*cobra.Command, []string) error {
	return func(c *cobra.Command, args []string) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		store, err := favorites.Open(cfg.Favorites.Path)
		if err != nil {
			return err
		}
		return fn(c, store, args)
	}
}
