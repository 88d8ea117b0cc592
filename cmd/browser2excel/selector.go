package main

import (
	"fmt"

	"github.com/Veraticus/browser2excel/internal/cli"
	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/extract"
	"github.com/spf13/cobra"
)

func selectorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selector",
		Short: "Show or change the card selector the agent uses",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the active selector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSelectorStore(cmd, func(store *extract.SelectorStore) error {
				selector, err := store.Get(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), selector)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <selector>",
		Short: "Store a CSS selector for transaction cards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSelectorStore(cmd, func(store *extract.SelectorStore) error {
				if err := store.Set(cmd.Context(), args[0]); err != nil {
					return common.NewUserError(fmt.Sprintf("Cannot use selector %q", args[0]), err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Selector saved"))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Go back to the default selector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSelectorStore(cmd, func(store *extract.SelectorStore) error {
				if err := store.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Selector reset to "+extract.DefaultSelector))
				return nil
			})
		},
	})

	return cmd
}

func withSelectorStore(cmd *cobra.Command, fn func(*extract.SelectorStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(extract.NewSelectorStore(store))
}
