package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dotandev/sorolend/internal/lending"
)

func newQueryCommand(s *session) *cobra.Command {
	c := &cobra.Command{
		Use:   "query",
		Short: "Read lending pool state through simulation",
	}

	type intQuery struct {
		use, short string
		needUser   bool
		needDenom  bool
		call       func(pool *lending.Client, ctx context.Context, user, denom string) (*big.Int, error)
	}
	queries := []intQuery{
		{"price", "USD price of a token, scaled by 10^8", false, true,
			func(p *lending.Client, ctx context.Context, _, denom string) (*big.Int, error) {
				return p.GetPrice(ctx, denom)
			}},
		{"tvl", "Total value locked in USD", false, false,
			func(p *lending.Client, ctx context.Context, _, _ string) (*big.Int, error) {
				return p.GetTVL(ctx)
			}},
		{"interest-rate", "Current borrow rate of a token", false, true,
			func(p *lending.Client, ctx context.Context, _, denom string) (*big.Int, error) {
				return p.GetInterestRate(ctx, denom)
			}},
		{"liquidity-rate", "Current deposit rate of a token", false, true,
			func(p *lending.Client, ctx context.Context, _, denom string) (*big.Int, error) {
				return p.GetLiquidityRate(ctx, denom)
			}},
		{"deposit", "A user's deposit of a token", true, true,
			(*lending.Client).GetDeposit},
		{"available-to-borrow", "How much of a token a user may borrow", true, true,
			(*lending.Client).GetAvailableToBorrow},
		{"available-to-redeem", "How much of a token a user may withdraw", true, true,
			(*lending.Client).GetAvailableToRedeem},
		{"deposited-usd", "A user's deposits in USD", true, false,
			func(p *lending.Client, ctx context.Context, user, _ string) (*big.Int, error) {
				return p.GetUserDepositedUsd(ctx, user)
			}},
		{"borrowed-usd", "A user's debt in USD", true, false,
			func(p *lending.Client, ctx context.Context, user, _ string) (*big.Int, error) {
				return p.GetUserBorrowedUsd(ctx, user)
			}},
		{"max-borrow-usd", "The most a user may borrow in USD", true, false,
			func(p *lending.Client, ctx context.Context, user, _ string) (*big.Int, error) {
				return p.GetUserMaxAllowedBorrowAmountUsd(ctx, user)
			}},
	}

	for _, q := range queries {
		var user, denom string
		sub := &cobra.Command{
			Use:   q.use,
			Short: q.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, pool, err := s.readPool()
				if err != nil {
					return err
				}
				if q.needUser {
					if user, err = a.defaultUser(user); err != nil {
						return err
					}
				}
				n, err := q.call(pool, cmd.Context(), user, denom)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n.String())
				return nil
			},
		}
		if q.needUser {
			sub.Flags().StringVar(&user, "user", "", "account to query, defaults to the configured user")
		}
		if q.needDenom {
			sub.Flags().StringVar(&denom, "denom", "", "token symbol")
			_ = sub.MarkFlagRequired("denom")
		}
		c.AddCommand(sub)
	}

	c.AddCommand(newBorrowingInfoCommand(s), newBalanceCommand(s))
	return c
}

func newBorrowingInfoCommand(s *session) *cobra.Command {
	var user, denom string
	c := &cobra.Command{
		Use:   "borrowing-info",
		Short: "A user's borrowed amount and average rate for a token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, pool, err := s.readPool()
			if err != nil {
				return err
			}
			if user, err = a.defaultUser(user); err != nil {
				return err
			}
			info, err := pool.GetUserBorrowingInfo(cmd.Context(), user, denom)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Borrowed:     %s\n", info.BorrowedAmount)
			fmt.Fprintf(w, "Average rate: %s\n", info.AverageInterestRate)
			fmt.Fprintf(w, "Timestamp:    %d\n", info.Timestamp)
			return nil
		},
	}
	c.Flags().StringVar(&user, "user", "", "account to query, defaults to the configured user")
	c.Flags().StringVar(&denom, "denom", "", "token symbol")
	_ = c.MarkFlagRequired("denom")
	return c
}

func newBalanceCommand(s *session) *cobra.Command {
	var user, denom string
	c := &cobra.Command{
		Use:   "balance",
		Short: "A user's balance of a configured token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, pool, err := s.readPool()
			if err != nil {
				return err
			}
			token := a.cfg.Tokens[denom]
			if token == "" {
				return errors.Errorf("no token contract configured for %s", denom)
			}
			if user, err = a.defaultUser(user); err != nil {
				return err
			}
			n, err := pool.TokenBalance(cmd.Context(), token, user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.String())
			return nil
		},
	}
	c.Flags().StringVar(&user, "user", "", "account to query, defaults to the configured user")
	c.Flags().StringVar(&denom, "denom", "", "token symbol")
	_ = c.MarkFlagRequired("denom")
	return c
}

func (s *session) readPool() (*app, *lending.Client, error) {
	a, err := s.services()
	if err != nil {
		return nil, nil, err
	}
	pool, err := a.pool(a.executor)
	if err != nil {
		return nil, nil, err
	}
	return a, pool, nil
}

// defaultUser returns user, or the configured user's address when empty.
func (a *app) defaultUser(user string) (string, error) {
	if user != "" {
		return user, nil
	}
	cred, err := a.credential("user")
	if err != nil {
		return "", errors.Wrap(err, "no --user given")
	}
	return cred.Address(), nil
}
