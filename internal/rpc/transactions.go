package rpc

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// Simulation is the decoded form of a simulateTransaction response.
type Simulation struct {
	// Error is the server's diagnostic when the invocation could not be run.
	Error string
	// TransactionData is nil when the server returned no resource data.
	TransactionData *xdr.SorobanTransactionData
	Auth            []xdr.SorobanAuthorizationEntry
	Result          *xdr.ScVal
	MinResourceFee  int64
	CPUInstructions uint64
	MemoryBytes     uint64
	ReadFootprint   int
	WriteFootprint  int
	Events          int
	RestoreRequired bool
	LatestLedger    uint32
}

// Decode turns the base64 XDR fields of r into typed values. Footprint sizes
// and the instruction count come from the decoded SorobanTransactionData.
func (r SimulateTransactionResponse) Decode() (*Simulation, error) {
	sim := &Simulation{
		Error:           r.Error,
		MinResourceFee:  r.MinResourceFee,
		Events:          len(r.Events),
		RestoreRequired: r.RestorePreamble != nil,
		LatestLedger:    r.LatestLedger,
	}
	if r.Cost != nil {
		sim.CPUInstructions = r.Cost.CPUInstructions
		sim.MemoryBytes = r.Cost.MemoryBytes
	}

	if r.TransactionData != "" {
		var data xdr.SorobanTransactionData
		if err := xdr.SafeUnmarshalBase64(r.TransactionData, &data); err != nil {
			return nil, errors.Wrap(err, "decoding transactionData")
		}
		sim.TransactionData = &data
		sim.ReadFootprint = len(data.Resources.Footprint.ReadOnly)
		sim.WriteFootprint = len(data.Resources.Footprint.ReadWrite)
		sim.CPUInstructions = uint64(data.Resources.Instructions)
	}

	if len(r.Results) > 0 {
		res := r.Results[0]
		if res.XDR != "" {
			var val xdr.ScVal
			if err := xdr.SafeUnmarshalBase64(res.XDR, &val); err != nil {
				return nil, errors.Wrap(err, "decoding result value")
			}
			sim.Result = &val
		}
		for i, encoded := range res.Auth {
			var entry xdr.SorobanAuthorizationEntry
			if err := xdr.SafeUnmarshalBase64(encoded, &entry); err != nil {
				return nil, errors.Wrapf(err, "decoding auth entry %d", i)
			}
			sim.Auth = append(sim.Auth, entry)
		}
	}
	return sim, nil
}

func (c *Client) SimulateTransaction(ctx context.Context, tx *txnbuild.Transaction) (*Simulation, error) {
	encoded, err := tx.Base64()
	if err != nil {
		return nil, errors.Wrap(err, "encoding transaction")
	}
	var out SimulateTransactionResponse
	if err := c.call(ctx, "simulateTransaction", SimulateTransactionRequest{Transaction: encoded}, &out); err != nil {
		return nil, err
	}
	return out.Decode()
}

func (c *Client) SendTransaction(ctx context.Context, tx *txnbuild.Transaction) (*SendTransactionResponse, error) {
	encoded, err := tx.Base64()
	if err != nil {
		return nil, errors.Wrap(err, "encoding transaction")
	}
	var out SendTransactionResponse
	if err := c.call(ctx, "sendTransaction", SendTransactionRequest{Transaction: encoded}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTransaction(ctx context.Context, hash string) (*GetTransactionResponse, error) {
	var out GetTransactionResponse
	if err := c.call(ctx, "getTransaction", GetTransactionRequest{Hash: hash}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PrepareTransaction simulates tx as built and returns a copy carrying the
// simulated footprint, resources and authorization entries. The resource fee
// is added on top of the fee tx was built with.
func (c *Client) PrepareTransaction(ctx context.Context, tx *txnbuild.Transaction) (*txnbuild.Transaction, error) {
	sim, err := c.SimulateTransaction(ctx, tx)
	if err != nil {
		return nil, errors.Wrap(err, "preparing transaction")
	}
	if sim.Error != "" {
		return nil, errors.Errorf("preparing transaction: simulation failed: %s", sim.Error)
	}
	if sim.TransactionData == nil {
		return nil, errors.New("preparing transaction: simulation returned no transaction data")
	}
	return Assemble(tx, sim)
}

// Assemble attaches sim's soroban data to tx, which must hold exactly one
// soroban operation. Contract calls without auth entries also get the
// simulated ones.
func Assemble(tx *txnbuild.Transaction, sim *Simulation) (*txnbuild.Transaction, error) {
	if sim.TransactionData == nil {
		return nil, errors.New("simulation has no transaction data")
	}
	encoded, err := tx.Base64()
	if err != nil {
		return nil, errors.Wrap(err, "encoding transaction")
	}
	var env xdr.TransactionEnvelope
	if err := xdr.SafeUnmarshalBase64(encoded, &env); err != nil {
		return nil, errors.Wrap(err, "decoding envelope")
	}
	if env.Type != xdr.EnvelopeTypeEnvelopeTypeTx || env.V1 == nil {
		return nil, errors.Errorf("unsupported envelope type %s", env.Type)
	}

	ops := env.V1.Tx.Operations
	if len(ops) != 1 {
		return nil, errors.Errorf("transaction must contain exactly one soroban operation, has %d", len(ops))
	}
	switch ops[0].Body.Type {
	case xdr.OperationTypeInvokeHostFunction:
		invoke := ops[0].Body.InvokeHostFunctionOp
		if len(invoke.Auth) == 0 {
			invoke.Auth = sim.Auth
		}
	case xdr.OperationTypeExtendFootprintTtl, xdr.OperationTypeRestoreFootprint:
	default:
		return nil, errors.Errorf("%s is not a soroban operation", ops[0].Body.Type)
	}

	data := *sim.TransactionData
	fee := int64(env.V1.Tx.Fee) + int64(data.ResourceFee)
	if fee > math.MaxUint32 {
		return nil, errors.Errorf("total fee %d overflows uint32", fee)
	}
	env.V1.Tx.Fee = xdr.Uint32(fee)
	env.V1.Tx.Ext = xdr.TransactionExt{V: 1, SorobanData: &data}

	assembled, err := xdr.MarshalBase64(env)
	if err != nil {
		return nil, errors.Wrap(err, "encoding prepared envelope")
	}
	generic, err := txnbuild.TransactionFromXDR(assembled)
	if err != nil {
		return nil, errors.Wrap(err, "parsing prepared envelope")
	}
	prepared, ok := generic.Transaction()
	if !ok {
		return nil, errors.New("prepared envelope is not a plain transaction")
	}
	return prepared, nil
}

// Diagnostic renders the errorResultXdr of a rejected submission.
func (r SendTransactionResponse) Diagnostic() string {
	return describeResult(r.ErrorResultXDR)
}

// Diagnostic renders the resultXdr of a failed transaction.
func (r GetTransactionResponse) Diagnostic() string {
	return describeResult(r.ResultXDR)
}

// ReturnValue extracts the contract's return value from resultMetaXdr. It
// reports false when the meta is absent or of a version without soroban
// return data.
func (r GetTransactionResponse) ReturnValue() (*xdr.ScVal, bool) {
	if r.ResultMetaXDR == "" {
		return nil, false
	}
	var meta xdr.TransactionMeta
	if err := xdr.SafeUnmarshalBase64(r.ResultMetaXDR, &meta); err != nil {
		return nil, false
	}
	if v4, ok := meta.GetV4(); ok {
		if v4.SorobanMeta == nil || v4.SorobanMeta.ReturnValue == nil {
			return nil, false
		}
		val := *v4.SorobanMeta.ReturnValue
		return &val, true
	}
	v3, ok := meta.GetV3()
	if !ok || v3.SorobanMeta == nil {
		return nil, false
	}
	val := v3.SorobanMeta.ReturnValue
	return &val, true
}

func describeResult(encoded string) string {
	if encoded == "" {
		return "no result provided"
	}
	var res xdr.TransactionResult
	if err := xdr.SafeUnmarshalBase64(encoded, &res); err != nil {
		return "undecodable result " + encoded
	}

	parts := []string{res.Result.Code.String()}
	if results, ok := res.Result.GetResults(); ok {
		for i, op := range results {
			tr, ok := op.GetTr()
			if !ok {
				parts = append(parts, fmt.Sprintf("op[%d]=%s", i, op.Code))
				continue
			}
			if ihf, ok := tr.GetInvokeHostFunctionResult(); ok {
				parts = append(parts, fmt.Sprintf("op[%d]=%s", i, ihf.Code))
			}
		}
	}
	return fmt.Sprintf("%s (fee charged %d)", strings.Join(parts, " "), res.FeeCharged)
}
