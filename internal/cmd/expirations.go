package cmd

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dotandev/sorolend/internal/analytics"
	"github.com/dotandev/sorolend/internal/expiry"
	"github.com/dotandev/sorolend/internal/keys"
)

// scope selects the ledger entries a command works on.
type scope struct {
	users    []string
	withList bool
}

func (sc *scope) bind(c *cobra.Command) {
	c.Flags().StringSliceVar(&sc.users, "user", nil, "include the per-user keys of this account (repeatable)")
	c.Flags().BoolVar(&sc.withList, "watchlist", false, "include the local watch list")
}

func newExpirationsCommand(s *session) *cobra.Command {
	var sc scope
	c := &cobra.Command{
		Use:   "expirations",
		Short: "Show how long the pool's ledger entries stay live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := s.services()
			if err != nil {
				return err
			}
			report, _, err := a.inspect(cmd.Context(), sc)
			if err != nil {
				return err
			}
			analytics.PrintExpirationReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
	sc.bind(c)
	return c
}

// inspect derives the keys in sc and checks them in one query.
func (a *app) inspect(ctx context.Context, sc scope) (expiry.Report, map[string]keys.Descriptor, error) {
	descs, err := a.descriptors(ctx, sc.users, sc.withList)
	if err != nil {
		return nil, nil, err
	}
	report, err := a.inspector().Check(ctx, descs)
	if err != nil {
		return nil, nil, err
	}
	return report, descs, nil
}

func newExtendCommand(s *session) *cobra.Command {
	var (
		sc      scope
		ledgers uint32
		role    string
	)
	c := &cobra.Command{
		Use:   "extend [label...]",
		Short: "Extend the time to live of live entries, all of them unless labels are given",
		RunE: func(cmd *cobra.Command, labels []string) error {
			a, err := s.services()
			if err != nil {
				return err
			}
			cred, err := a.credential(role)
			if err != nil {
				return err
			}
			report, descs, err := a.inspect(cmd.Context(), sc)
			if err != nil {
				return err
			}
			targets, err := pick(report, descs, labels, expiry.StateLive)
			if err != nil {
				return err
			}
			out, err := a.executor.Extend(cmd.Context(), cred, ledgers, targets...)
			a.progress.done()
			if out != nil {
				analytics.PrintOutcome(cmd.OutOrStdout(), "extend", *out)
			}
			return err
		},
	}
	sc.bind(c)
	c.Flags().Uint32Var(&ledgers, "ledgers", uint32(expiry.LedgersPerDay*30), "ledgers to extend the time to live to")
	c.Flags().StringVar(&role, "as", "admin", "signing role: admin or user")
	return c
}

func newRestoreCommand(s *session) *cobra.Command {
	var (
		sc   scope
		role string
	)
	c := &cobra.Command{
		Use:   "restore [label...]",
		Short: "Restore archived entries, all expired ones unless labels are given",
		RunE: func(cmd *cobra.Command, labels []string) error {
			a, err := s.services()
			if err != nil {
				return err
			}
			cred, err := a.credential(role)
			if err != nil {
				return err
			}
			report, descs, err := a.inspect(cmd.Context(), sc)
			if err != nil {
				return err
			}
			targets, err := pick(report, descs, labels, expiry.StateExpired)
			if err != nil {
				return err
			}
			out, err := a.executor.Restore(cmd.Context(), cred, targets...)
			a.progress.done()
			if out != nil {
				analytics.PrintOutcome(cmd.OutOrStdout(), "restore", *out)
			}
			return err
		},
	}
	sc.bind(c)
	c.Flags().StringVar(&role, "as", "admin", "signing role: admin or user")
	return c
}

// pick returns the descriptors of labels, or of every entry in state when no
// labels are given. Named labels must exist and be in state.
func pick(report expiry.Report, descs map[string]keys.Descriptor, labels []string, state expiry.State) ([]keys.Descriptor, error) {
	if len(labels) == 0 {
		labels = report.Labels()
	} else {
		for _, l := range labels {
			exp, ok := report[l]
			if !ok {
				return nil, errors.Errorf("unknown label %q", l)
			}
			if exp.State != state {
				return nil, errors.Errorf("%q is %s, not %s", l, exp.State, state)
			}
		}
		sort.Strings(labels)
	}

	var out []keys.Descriptor
	for _, l := range labels {
		if report[l].State == state {
			out = append(out, descs[l])
		}
	}
	if len(out) == 0 {
		return nil, errors.Errorf("no %s entries to act on", state)
	}
	return out, nil
}
