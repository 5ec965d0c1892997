// Package lending is the call surface of the lending pool contract. Every
// method packages its arguments into an invoke.Request; state-changing calls
// go through an Executor, queries only through simulation.
package lending

import (
	"context"
	"math/big"

	"github.com/pkg/errors"
	"github.com/stellar/go/xdr"

	"github.com/dotandev/sorolend/internal/invoke"
	"github.com/dotandev/sorolend/internal/scval"
	"github.com/dotandev/sorolend/internal/signer"
)

// Contract function names.
const (
	MethodDeposit                          = "Deposit"
	MethodBorrow                           = "Borrow"
	MethodRedeem                           = "Redeem"
	MethodRepay                            = "Repay"
	MethodToggleCollateralSetting          = "ToggleCollateralSetting"
	MethodUpdatePrice                      = "UpdatePrice"
	MethodAddMarkets                       = "AddMarkets"
	MethodSetTokenInterestRateModelParams  = "SetTokenInterestRateModelParams"
	MethodGetPrice                         = "GetPrice"
	MethodGetAvailableToBorrow             = "GetAvailableToBorrow"
	MethodGetAvailableToRedeem             = "GetAvailableToRedeem"
	MethodGetDeposit                       = "GetDeposit"
	MethodGetUserDepositedUsd              = "GetUserDepositedUsd"
	MethodGetUserBorrowedUsd               = "GetUserBorrowedUsd"
	MethodGetUserMaxAllowedBorrowAmountUsd = "GetUserMaxAllowedBorrowAmountUsd"
	MethodGetUserBorrowingInfo             = "GetUserBorrowingInfo"
	MethodGetInterestRate                  = "GetInterestRate"
	MethodGetLiquidityRate                 = "GetLiquidityRate"
	MethodGetTVL                           = "GetTVL"

	// Faucet and token contract functions.
	MethodRequestToken = "request_token"
	MethodBalance      = "balance"
)

type Executor interface {
	Execute(ctx context.Context, req invoke.Request, cred signer.Credential) (*invoke.Outcome, error)
}

type Simulator interface {
	Simulate(ctx context.Context, req invoke.Request) (*invoke.SimulationResult, error)
}

// Client calls one lending pool. Queries are simulated with source as the
// transaction source; it must be an existing account.
type Client struct {
	contract string
	source   string
	exec     Executor
	sim      Simulator
}

func NewClient(contract, source string, exec Executor, sim Simulator) *Client {
	return &Client{contract: contract, source: source, exec: exec, sim: sim}
}

func (c *Client) Contract() string {
	return c.contract
}

// InterestRateParams shape a token's borrow rate curve. Rates are scaled
// by 10^18, the utilization ratio by 10^5.
type InterestRateParams struct {
	MinInterestRate         *big.Int
	SafeBorrowMaxRate       *big.Int
	RateGrowthFactor        *big.Int
	OptimalUtilizationRatio *big.Int
}

func (p InterestRateParams) args() ([]xdr.ScVal, error) {
	return u128s(p.MinInterestRate, p.SafeBorrowMaxRate, p.RateGrowthFactor, p.OptimalUtilizationRatio)
}

// Market describes a token being listed on the pool.
type Market struct {
	Denom    string
	Token    string
	Decimals uint32
	// LoanToValue and LiquidationThreshold are scaled by 10^5.
	LoanToValue          *big.Int
	LiquidationThreshold *big.Int
	Rates                InterestRateParams
}

// BorrowingInfo is a user's position in one token.
type BorrowingInfo struct {
	BorrowedAmount      *big.Int
	AverageInterestRate *big.Int
	Timestamp           uint64
}

func (c *Client) Deposit(ctx context.Context, cred signer.Credential, denom string, amount *big.Int) (*invoke.Outcome, error) {
	return c.userAmount(ctx, MethodDeposit, cred, denom, amount)
}

func (c *Client) Borrow(ctx context.Context, cred signer.Credential, denom string, amount *big.Int) (*invoke.Outcome, error) {
	return c.userAmount(ctx, MethodBorrow, cred, denom, amount)
}

// Redeem withdraws amount of denom; zero redeems everything available.
func (c *Client) Redeem(ctx context.Context, cred signer.Credential, denom string, amount *big.Int) (*invoke.Outcome, error) {
	return c.userAmount(ctx, MethodRedeem, cred, denom, amount)
}

// Repay pays back amount of denom; zero repays the whole debt.
func (c *Client) Repay(ctx context.Context, cred signer.Credential, denom string, amount *big.Int) (*invoke.Outcome, error) {
	return c.userAmount(ctx, MethodRepay, cred, denom, amount)
}

func (c *Client) ToggleCollateralSetting(ctx context.Context, cred signer.Credential, denom string) (*invoke.Outcome, error) {
	user, err := scval.Address(cred.Address())
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, cred, MethodToggleCollateralSetting, user, scval.Symbol(denom))
}

// UpdatePrice sets denom's USD price scaled by 10^8. Admin only.
func (c *Client) UpdatePrice(ctx context.Context, admin signer.Credential, denom string, price *big.Int) (*invoke.Outcome, error) {
	p, err := scval.U128(price)
	if err != nil {
		return nil, errors.Wrap(err, "price")
	}
	return c.execute(ctx, admin, MethodUpdatePrice, scval.Symbol(denom), p)
}

// AddMarkets lists a new token. Admin only.
func (c *Client) AddMarkets(ctx context.Context, admin signer.Credential, m Market) (*invoke.Outcome, error) {
	token, err := scval.Address(m.Token)
	if err != nil {
		return nil, errors.Wrap(err, "token")
	}
	ratios, err := u128s(m.LoanToValue, m.LiquidationThreshold)
	if err != nil {
		return nil, err
	}
	rates, err := m.Rates.args()
	if err != nil {
		return nil, err
	}
	args := []xdr.ScVal{scval.Symbol(m.Denom), token, scval.Symbol(m.Denom), scval.U32(m.Decimals)}
	args = append(args, ratios...)
	args = append(args, rates...)
	return c.execute(ctx, admin, MethodAddMarkets, args...)
}

// SetTokenInterestRateModelParams replaces denom's rate curve. Admin only.
func (c *Client) SetTokenInterestRateModelParams(ctx context.Context, admin signer.Credential, denom string, p InterestRateParams) (*invoke.Outcome, error) {
	rates, err := p.args()
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, admin, MethodSetTokenInterestRateModelParams, append([]xdr.ScVal{scval.Symbol(denom)}, rates...)...)
}

// RequestToken asks the faucet contract to mint amount of token to the
// credential's account.
func (c *Client) RequestToken(ctx context.Context, cred signer.Credential, faucet, token string, amount *big.Int) (*invoke.Outcome, error) {
	user, err := scval.Address(cred.Address())
	if err != nil {
		return nil, err
	}
	tokenAddr, err := scval.Address(token)
	if err != nil {
		return nil, errors.Wrap(err, "token")
	}
	n, err := scval.I128(amount)
	if err != nil {
		return nil, errors.Wrap(err, "amount")
	}
	req := invoke.NewRequest(faucet, MethodRequestToken, cred.Address(), []xdr.ScVal{user, tokenAddr, n}, nil)
	return c.exec.Execute(ctx, req, cred)
}

// GetPrice returns denom's USD price scaled by 10^8.
func (c *Client) GetPrice(ctx context.Context, denom string) (*big.Int, error) {
	return c.queryInt(ctx, c.contract, MethodGetPrice, scval.Symbol(denom))
}

func (c *Client) GetAvailableToBorrow(ctx context.Context, user, denom string) (*big.Int, error) {
	return c.userDenomQuery(ctx, MethodGetAvailableToBorrow, user, denom)
}

func (c *Client) GetAvailableToRedeem(ctx context.Context, user, denom string) (*big.Int, error) {
	return c.userDenomQuery(ctx, MethodGetAvailableToRedeem, user, denom)
}

func (c *Client) GetDeposit(ctx context.Context, user, denom string) (*big.Int, error) {
	return c.userDenomQuery(ctx, MethodGetDeposit, user, denom)
}

func (c *Client) GetUserDepositedUsd(ctx context.Context, user string) (*big.Int, error) {
	return c.userQuery(ctx, MethodGetUserDepositedUsd, user)
}

func (c *Client) GetUserBorrowedUsd(ctx context.Context, user string) (*big.Int, error) {
	return c.userQuery(ctx, MethodGetUserBorrowedUsd, user)
}

func (c *Client) GetUserMaxAllowedBorrowAmountUsd(ctx context.Context, user string) (*big.Int, error) {
	return c.userQuery(ctx, MethodGetUserMaxAllowedBorrowAmountUsd, user)
}

func (c *Client) GetUserBorrowingInfo(ctx context.Context, user, denom string) (*BorrowingInfo, error) {
	addr, err := scval.Address(user)
	if err != nil {
		return nil, err
	}
	val, err := c.query(ctx, c.contract, MethodGetUserBorrowingInfo, decodeBorrowingInfo, addr, scval.Symbol(denom))
	if err != nil {
		return nil, err
	}
	info, ok := val.(*BorrowingInfo)
	if !ok {
		return nil, errors.Errorf("%s returned no value", MethodGetUserBorrowingInfo)
	}
	return info, nil
}

func (c *Client) GetInterestRate(ctx context.Context, denom string) (*big.Int, error) {
	return c.queryInt(ctx, c.contract, MethodGetInterestRate, scval.Symbol(denom))
}

func (c *Client) GetLiquidityRate(ctx context.Context, denom string) (*big.Int, error) {
	return c.queryInt(ctx, c.contract, MethodGetLiquidityRate, scval.Symbol(denom))
}

// GetTVL returns the pool's total value locked in USD.
func (c *Client) GetTVL(ctx context.Context) (*big.Int, error) {
	return c.queryInt(ctx, c.contract, MethodGetTVL)
}

// TokenBalance reads user's balance from a token contract.
func (c *Client) TokenBalance(ctx context.Context, token, user string) (*big.Int, error) {
	addr, err := scval.Address(user)
	if err != nil {
		return nil, err
	}
	return c.queryInt(ctx, token, MethodBalance, addr)
}

func (c *Client) userAmount(ctx context.Context, method string, cred signer.Credential, denom string, amount *big.Int) (*invoke.Outcome, error) {
	user, err := scval.Address(cred.Address())
	if err != nil {
		return nil, err
	}
	n, err := scval.U128(amount)
	if err != nil {
		return nil, errors.Wrap(err, "amount")
	}
	return c.execute(ctx, cred, method, user, scval.Symbol(denom), n)
}

func (c *Client) execute(ctx context.Context, cred signer.Credential, method string, args ...xdr.ScVal) (*invoke.Outcome, error) {
	req := invoke.NewRequest(c.contract, method, cred.Address(), args, nil)
	return c.exec.Execute(ctx, req, cred)
}

func (c *Client) userQuery(ctx context.Context, method, user string) (*big.Int, error) {
	addr, err := scval.Address(user)
	if err != nil {
		return nil, err
	}
	return c.queryInt(ctx, c.contract, method, addr)
}

func (c *Client) userDenomQuery(ctx context.Context, method, user, denom string) (*big.Int, error) {
	addr, err := scval.Address(user)
	if err != nil {
		return nil, err
	}
	return c.queryInt(ctx, c.contract, method, addr, scval.Symbol(denom))
}

func (c *Client) queryInt(ctx context.Context, contract, method string, args ...xdr.ScVal) (*big.Int, error) {
	val, err := c.query(ctx, contract, method, decodeInt, args...)
	if err != nil {
		return nil, err
	}
	n, ok := val.(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s returned no value", method)
	}
	return n, nil
}

func (c *Client) query(ctx context.Context, contract, method string, decode invoke.DecodeFunc, args ...xdr.ScVal) (interface{}, error) {
	res, err := c.sim.Simulate(ctx, invoke.NewRequest(contract, method, c.source, args, decode))
	if err != nil {
		return nil, err
	}
	return res.ReturnValue, nil
}

func decodeInt(v xdr.ScVal) (interface{}, error) {
	return scval.BigInt(v)
}

func decodeBorrowingInfo(v xdr.ScVal) (interface{}, error) {
	native, err := scval.ToNative(v)
	if err != nil {
		return nil, err
	}
	fields, ok := native.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("borrowing info is %s, not a map", v.Type)
	}
	info := &BorrowingInfo{}
	if info.BorrowedAmount, ok = fields["borrowed_amount"].(*big.Int); !ok {
		return nil, errors.New("borrowing info lacks borrowed_amount")
	}
	if info.AverageInterestRate, ok = fields["average_interest_rate"].(*big.Int); !ok {
		return nil, errors.New("borrowing info lacks average_interest_rate")
	}
	if info.Timestamp, ok = fields["timestamp"].(uint64); !ok {
		return nil, errors.New("borrowing info lacks timestamp")
	}
	return info, nil
}

func u128s(values ...*big.Int) ([]xdr.ScVal, error) {
	out := make([]xdr.ScVal, 0, len(values))
	for i, v := range values {
		val, err := scval.U128(v)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i)
		}
		out = append(out, val)
	}
	return out, nil
}
