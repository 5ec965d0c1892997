package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the RPC server's health, network and version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.services()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			health, err := a.rpc.GetHealth(ctx)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Status:    %s\n", health.Status)
			fmt.Fprintf(w, "Ledgers:   %d..%d\n", health.OldestLedger, health.LatestLedger)
			fmt.Fprintf(w, "Retention: %d ledgers\n", health.LedgerRetentionWindow)

			if err := a.rpc.CheckCompatibility(ctx, a.cfg.NetworkPassphrase, a.cfg.MinServerVersion); err != nil {
				return err
			}
			fmt.Fprintln(w, "Compatible with", a.cfg.NetworkPassphrase)
			return nil
		},
	}
}
