package invoke

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"

	"github.com/dotandev/sorolend/internal/keys"
	"github.com/dotandev/sorolend/internal/signer"
)

const (
	methodExtend  = "ExtendFootprintTtl"
	methodRestore = "RestoreFootprint"
)

// Extend raises the live-until ledger of every entry in descs to at least
// extendBy ledgers past the current one. The invoker pays.
func (e *Executor) Extend(ctx context.Context, cred signer.Credential, extendBy uint32, descs ...keys.Descriptor) (*Outcome, error) {
	if extendBy == 0 {
		return nil, errors.New("extension must be at least one ledger")
	}
	ext, err := footprintExt(descs, false)
	if err != nil {
		return nil, err
	}
	op := &txnbuild.ExtendFootprintTtl{
		ExtendTo:      extendBy,
		SourceAccount: cred.Address(),
		Ext:           ext,
	}
	return e.run(ctx, "invoke.Extend", footprintRequest(methodExtend, cred), op, cred)
}

// Restore brings archived entries in descs back to the live ledger.
func (e *Executor) Restore(ctx context.Context, cred signer.Credential, descs ...keys.Descriptor) (*Outcome, error) {
	ext, err := footprintExt(descs, true)
	if err != nil {
		return nil, err
	}
	op := &txnbuild.RestoreFootprint{
		SourceAccount: cred.Address(),
		Ext:           ext,
	}
	return e.run(ctx, "invoke.Restore", footprintRequest(methodRestore, cred), op, cred)
}

func footprintRequest(method string, cred signer.Credential) Request {
	return Request{Method: method, Invoker: cred.Address()}
}

// footprintExt lists descs read-only for extension and read-write for
// restoration.
func footprintExt(descs []keys.Descriptor, writable bool) (xdr.TransactionExt, error) {
	if len(descs) == 0 {
		return xdr.TransactionExt{}, errors.New("no ledger keys given")
	}
	ledgerKeys := make([]xdr.LedgerKey, 0, len(descs))
	for _, d := range descs {
		key, err := d.LedgerKey()
		if err != nil {
			return xdr.TransactionExt{}, err
		}
		ledgerKeys = append(ledgerKeys, key)
	}

	var data xdr.SorobanTransactionData
	if writable {
		data.Resources.Footprint.ReadWrite = ledgerKeys
	} else {
		data.Resources.Footprint.ReadOnly = ledgerKeys
	}
	return xdr.TransactionExt{V: 1, SorobanData: &data}, nil
}
