// Package invoke runs contract calls against the network: Estimator
// simulates a call to learn its result and minimum fee, Executor drives a
// call through build, prepare, sign, submit and polling until it settles.
package invoke

import (
	"github.com/pkg/errors"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/dotandev/sorolend/internal/scval"
)

// PlaceholderFee is the base fee of the trial transaction sent to
// simulation. The network ignores it when computing the minimum fee.
const PlaceholderFee int64 = 2_000_000

// DecodeFunc turns a contract return value into a Go value.
type DecodeFunc func(xdr.ScVal) (interface{}, error)

// Request is one contract function call. Build it with NewRequest; the
// zero value is invalid.
type Request struct {
	Contract string
	Method   string
	// Invoker is the G... account that sources and pays for the call.
	Invoker string

	args   []xdr.ScVal
	decode DecodeFunc
}

// NewRequest copies args so later changes by the caller do not leak into
// the request. A nil decode falls back to scval.ToNative.
func NewRequest(contract, method, invoker string, args []xdr.ScVal, decode DecodeFunc) Request {
	return Request{
		Contract: contract,
		Method:   method,
		Invoker:  invoker,
		args:     append([]xdr.ScVal(nil), args...),
		decode:   decode,
	}
}

// Args returns a copy of the call arguments.
func (r Request) Args() []xdr.ScVal {
	return append([]xdr.ScVal(nil), r.args...)
}

func (r Request) validate() error {
	switch {
	case r.Contract == "":
		return errors.New("request has no contract")
	case r.Method == "":
		return errors.New("request has no method")
	case r.Invoker == "":
		return errors.New("request has no invoker")
	}
	return nil
}

// DecodeValue converts a return value of this call with its decoder.
func (r Request) DecodeValue(v xdr.ScVal) (interface{}, error) {
	if r.decode != nil {
		return r.decode(v)
	}
	return scval.ToNative(v)
}

func (r Request) operation() (*txnbuild.InvokeHostFunction, error) {
	contract, err := scval.ScAddress(r.Contract)
	if err != nil {
		return nil, err
	}
	if contract.Type != xdr.ScAddressTypeScAddressTypeContract {
		return nil, errors.Errorf("%s is not a contract address", r.Contract)
	}
	return &txnbuild.InvokeHostFunction{
		HostFunction: xdr.HostFunction{
			Type: xdr.HostFunctionTypeHostFunctionTypeInvokeContract,
			InvokeContract: &xdr.InvokeContractArgs{
				ContractAddress: contract,
				FunctionName:    xdr.ScSymbol(r.Method),
				Args:            r.Args(),
			},
		},
		SourceAccount: r.Invoker,
	}, nil
}

// buildTransaction wraps op in a transaction from account paying fee. A
// non-zero maxLedger bounds the ledgers the transaction may be included in.
// The account's sequence number is incremented in place.
func buildTransaction(account txnbuild.Account, op txnbuild.Operation, fee int64, maxLedger uint32) (*txnbuild.Transaction, error) {
	pre := txnbuild.Preconditions{TimeBounds: txnbuild.NewInfiniteTimeout()}
	if maxLedger > 0 {
		pre.LedgerBounds = &txnbuild.LedgerBounds{MaxLedger: maxLedger}
	}
	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        account,
		IncrementSequenceNum: true,
		Operations:           []txnbuild.Operation{op},
		BaseFee:              fee,
		Preconditions:        pre,
	})
	if err != nil {
		return nil, errors.Wrap(err, "building transaction")
	}
	return tx, nil
}
