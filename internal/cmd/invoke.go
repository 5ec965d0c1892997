package cmd

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dotandev/sorolend/internal/analytics"
	"github.com/dotandev/sorolend/internal/invoke"
	"github.com/dotandev/sorolend/internal/lending"
	"github.com/dotandev/sorolend/internal/signer"
)

// poolCall is one state-changing lending operation.
type poolCall func(ctx context.Context, pool *lending.Client, cred signer.Credential) (*invoke.Outcome, error)

// amountMethod is a pool method taking a user, a denom and an amount.
type amountMethod func(*lending.Client, context.Context, signer.Credential, string, *big.Int) (*invoke.Outcome, error)

func newInvokeCommand(s *session) *cobra.Command {
	c := &cobra.Command{
		Use:   "invoke",
		Short: "Submit a lending pool transaction and wait for its outcome",
	}
	c.AddCommand(poolCommands(s, false)...)
	return c
}

func newSimulateCommand(s *session) *cobra.Command {
	c := &cobra.Command{
		Use:   "simulate",
		Short: "Report what a lending pool transaction would cost without submitting it",
	}
	c.AddCommand(poolCommands(s, true)...)
	return c
}

// dryRun stands in for the executor and only simulates.
type dryRun struct {
	est    *invoke.Estimator
	method string
	res    *invoke.SimulationResult
}

func (d *dryRun) Execute(ctx context.Context, req invoke.Request, _ signer.Credential) (*invoke.Outcome, error) {
	res, err := d.est.Simulate(ctx, req)
	if err != nil {
		return nil, err
	}
	d.method, d.res = req.Method, res
	return nil, nil
}

func (s *session) submit(cmd *cobra.Command, role string, simulate bool, call poolCall) error {
	a, err := s.services()
	if err != nil {
		return err
	}
	cred, err := a.credential(role)
	if err != nil {
		return err
	}

	var (
		exec lending.Executor = a.executor
		dry  *dryRun
	)
	if simulate {
		dry = &dryRun{est: a.executor.Estimator()}
		exec = dry
	}
	pool, err := a.pool(exec)
	if err != nil {
		return err
	}

	out, err := call(cmd.Context(), pool, cred)
	a.progress.done()
	if dry != nil && dry.res != nil {
		analytics.PrintSimulationReport(cmd.OutOrStdout(), dry.method, dry.res)
	}
	if out != nil {
		analytics.PrintOutcome(cmd.OutOrStdout(), cmd.Name(), *out)
	}
	return err
}

// poolCommands builds one subcommand per state-changing pool method.
func poolCommands(s *session, simulate bool) []*cobra.Command {
	userAmount := func(use, short string, method amountMethod) *cobra.Command {
		var role, denom, amount string
		c := &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				n, err := parseAmount("amount", amount)
				if err != nil {
					return err
				}
				return s.submit(cmd, role, simulate, func(ctx context.Context, pool *lending.Client, cred signer.Credential) (*invoke.Outcome, error) {
					return method(pool, ctx, cred, denom, n)
				})
			},
		}
		c.Flags().StringVar(&role, "as", "user", "signing role: admin or user")
		c.Flags().StringVar(&denom, "denom", "", "token symbol, e.g. USDC")
		c.Flags().StringVar(&amount, "amount", "0", "amount in the token's base units")
		_ = c.MarkFlagRequired("denom")
		return c
	}

	return []*cobra.Command{
		userAmount("deposit", "Deposit tokens into the pool", (*lending.Client).Deposit),
		userAmount("borrow", "Borrow tokens against collateral", (*lending.Client).Borrow),
		userAmount("redeem", "Withdraw deposited tokens; zero withdraws everything", (*lending.Client).Redeem),
		userAmount("repay", "Repay borrowed tokens; zero repays the whole debt", (*lending.Client).Repay),
		newToggleCollateralCommand(s, simulate),
		newUpdatePriceCommand(s, simulate),
		newAddMarketCommand(s, simulate),
		newSetRateParamsCommand(s, simulate),
		newRequestTokenCommand(s, simulate),
	}
}

func newToggleCollateralCommand(s *session, simulate bool) *cobra.Command {
	var role, denom string
	c := &cobra.Command{
		Use:   "toggle-collateral",
		Short: "Toggle whether a deposit counts as collateral",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.submit(cmd, role, simulate, func(ctx context.Context, pool *lending.Client, cred signer.Credential) (*invoke.Outcome, error) {
				return pool.ToggleCollateralSetting(ctx, cred, denom)
			})
		},
	}
	c.Flags().StringVar(&role, "as", "user", "signing role: admin or user")
	c.Flags().StringVar(&denom, "denom", "", "token symbol")
	_ = c.MarkFlagRequired("denom")
	return c
}

func newUpdatePriceCommand(s *session, simulate bool) *cobra.Command {
	var denom, price string
	c := &cobra.Command{
		Use:   "update-price",
		Short: "Set a token's USD price, scaled by 10^8",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := parseAmount("price", price)
			if err != nil {
				return err
			}
			return s.submit(cmd, "admin", simulate, func(ctx context.Context, pool *lending.Client, cred signer.Credential) (*invoke.Outcome, error) {
				return pool.UpdatePrice(ctx, cred, denom, p)
			})
		},
	}
	c.Flags().StringVar(&denom, "denom", "", "token symbol")
	c.Flags().StringVar(&price, "price", "", "price scaled by 10^8")
	_ = c.MarkFlagRequired("denom")
	_ = c.MarkFlagRequired("price")
	return c
}

// rateFlags binds the interest rate curve flags.
type rateFlags struct {
	min, safeMax, growth, optimal string
}

func (r *rateFlags) bind(c *cobra.Command) {
	c.Flags().StringVar(&r.min, "min-rate", "0", "minimum interest rate, scaled by 10^18")
	c.Flags().StringVar(&r.safeMax, "safe-max-rate", "0", "rate at optimal utilization, scaled by 10^18")
	c.Flags().StringVar(&r.growth, "growth-factor", "0", "rate growth past optimal utilization, scaled by 10^18")
	c.Flags().StringVar(&r.optimal, "optimal-utilization", "0", "optimal utilization ratio, scaled by 10^5")
}

func (r *rateFlags) params() (lending.InterestRateParams, error) {
	var (
		p   lending.InterestRateParams
		err error
	)
	if p.MinInterestRate, err = parseAmount("min-rate", r.min); err != nil {
		return p, err
	}
	if p.SafeBorrowMaxRate, err = parseAmount("safe-max-rate", r.safeMax); err != nil {
		return p, err
	}
	if p.RateGrowthFactor, err = parseAmount("growth-factor", r.growth); err != nil {
		return p, err
	}
	if p.OptimalUtilizationRatio, err = parseAmount("optimal-utilization", r.optimal); err != nil {
		return p, err
	}
	return p, nil
}

func newAddMarketCommand(s *session, simulate bool) *cobra.Command {
	var (
		denom, token, ltv, threshold string
		decimals                     uint32
		rates                        rateFlags
	)
	c := &cobra.Command{
		Use:   "add-market",
		Short: "List a token on the pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				token = s.cfg.Tokens[denom]
			}
			if token == "" {
				return errors.Errorf("no token contract for %s: pass --token or configure it", denom)
			}
			m := lending.Market{Denom: denom, Token: token, Decimals: decimals}
			var err error
			if m.LoanToValue, err = parseAmount("ltv", ltv); err != nil {
				return err
			}
			if m.LiquidationThreshold, err = parseAmount("liquidation-threshold", threshold); err != nil {
				return err
			}
			if m.Rates, err = rates.params(); err != nil {
				return err
			}
			return s.submit(cmd, "admin", simulate, func(ctx context.Context, pool *lending.Client, cred signer.Credential) (*invoke.Outcome, error) {
				return pool.AddMarkets(ctx, cred, m)
			})
		},
	}
	c.Flags().StringVar(&denom, "denom", "", "token symbol")
	c.Flags().StringVar(&token, "token", "", "token contract, defaults to the configured one")
	c.Flags().Uint32Var(&decimals, "decimals", 7, "token decimals")
	c.Flags().StringVar(&ltv, "ltv", "0", "loan to value, scaled by 10^5")
	c.Flags().StringVar(&threshold, "liquidation-threshold", "0", "liquidation threshold, scaled by 10^5")
	rates.bind(c)
	_ = c.MarkFlagRequired("denom")
	return c
}

func newSetRateParamsCommand(s *session, simulate bool) *cobra.Command {
	var (
		denom string
		rates rateFlags
	)
	c := &cobra.Command{
		Use:   "set-rate-params",
		Short: "Replace a token's interest rate curve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := rates.params()
			if err != nil {
				return err
			}
			return s.submit(cmd, "admin", simulate, func(ctx context.Context, pool *lending.Client, cred signer.Credential) (*invoke.Outcome, error) {
				return pool.SetTokenInterestRateModelParams(ctx, cred, denom, p)
			})
		},
	}
	c.Flags().StringVar(&denom, "denom", "", "token symbol")
	rates.bind(c)
	_ = c.MarkFlagRequired("denom")
	return c
}

func newRequestTokenCommand(s *session, simulate bool) *cobra.Command {
	var role, denom, amount string
	c := &cobra.Command{
		Use:   "request-token",
		Short: "Mint test tokens from the faucet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s.cfg.FaucetAddress == "" {
				return errors.New("faucet address is not set")
			}
			token := s.cfg.Tokens[denom]
			if token == "" {
				return errors.Errorf("no token contract configured for %s", denom)
			}
			n, err := parseAmount("amount", amount)
			if err != nil {
				return err
			}
			return s.submit(cmd, role, simulate, func(ctx context.Context, pool *lending.Client, cred signer.Credential) (*invoke.Outcome, error) {
				return pool.RequestToken(ctx, cred, s.cfg.FaucetAddress, token, n)
			})
		},
	}
	c.Flags().StringVar(&role, "as", "user", "signing role: admin or user")
	c.Flags().StringVar(&denom, "denom", "", "token symbol")
	c.Flags().StringVar(&amount, "amount", "", "amount in the token's base units")
	_ = c.MarkFlagRequired("denom")
	_ = c.MarkFlagRequired("amount")
	return c
}

// parseAmount reads a non-negative base-10 integer.
func parseAmount(name, s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("%s %q is not an integer", name, s)
	}
	if n.Sign() < 0 {
		return nil, errors.Errorf("%s must not be negative", name)
	}
	return n, nil
}
