package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dotandev/sorolend/internal/watchlist"
)

func newWatchCommand(s *session) *cobra.Command {
	c := &cobra.Command{
		Use:   "watch",
		Short: "Manage the local list of extra ledger keys to inspect",
	}
	c.AddCommand(newWatchAddCommand(s), newWatchListCommand(s), newWatchRemoveCommand(s))
	return c
}

func newWatchAddCommand(s *session) *cobra.Command {
	var (
		e    watchlist.Entry
		kind string
	)
	c := &cobra.Command{
		Use:   "add <label>",
		Short: "Watch a ledger key under a label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.services()
			if err != nil {
				return err
			}
			store, err := a.watchlist()
			if err != nil {
				return err
			}
			e.Label, e.Kind = args[0], watchlist.Kind(kind)
			if err := store.Add(cmd.Context(), e); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "watching %s\n", e.Label)
			return nil
		},
	}
	c.Flags().StringVar(&kind, "kind", string(watchlist.KindSymbol), "symbol, named-address, instance, code or raw")
	c.Flags().StringVar(&e.Contract, "contract", "", "contract owning the key")
	c.Flags().StringVar(&e.Name, "name", "", "storage key name")
	c.Flags().StringVar(&e.Address, "address", "", "address paired with the name")
	c.Flags().StringVar(&e.RawKey, "key", "", "base64 XDR ledger key, for raw entries")
	return c
}

func newWatchListCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List watched keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.services()
			if err != nil {
				return err
			}
			store, err := a.watchlist()
			if err != nil {
				return err
			}
			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Label", "Kind", "Contract", "Name", "Address"})
			table.SetAutoWrapText(false)
			for _, e := range entries {
				table.Append([]string{e.Label, string(e.Kind), dash(e.Contract), dash(e.Name), dash(e.Address)})
			}
			table.Render()
			return nil
		},
	}
}

func newWatchRemoveCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <label>",
		Short: "Stop watching a label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.services()
			if err != nil {
				return err
			}
			store, err := a.watchlist()
			if err != nil {
				return err
			}
			return store.Remove(cmd.Context(), args[0])
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
