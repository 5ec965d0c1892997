package rpc

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
)

// ErrAccountNotFound is returned by GetAccount when the ledger has no entry
// for the address.
var ErrAccountNotFound = errors.New("account not found")

// GetLedgerEntries fetches the entries for keys (base64 XDR LedgerKey) in a
// single request. Keys without an entry are simply absent from the response.
func (c *Client) GetLedgerEntries(ctx context.Context, keys []string) (*GetLedgerEntriesResponse, error) {
	var out GetLedgerEntriesResponse
	if err := c.call(ctx, "getLedgerEntries", GetLedgerEntriesRequest{Keys: keys}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccount reads the account entry for address and returns it in the shape
// txnbuild expects as a transaction source.
func (c *Client) GetAccount(ctx context.Context, address string) (*txnbuild.SimpleAccount, error) {
	key, err := AccountKey(address)
	if err != nil {
		return nil, err
	}
	resp, err := c.GetLedgerEntries(ctx, []string{key})
	if err != nil {
		return nil, errors.Wrapf(err, "loading account %s", address)
	}
	if len(resp.Entries) == 0 {
		return nil, errors.Wrapf(ErrAccountNotFound, "%s", address)
	}

	data, err := DecodeEntryData(resp.Entries[0].XDR)
	if err != nil {
		return nil, err
	}
	entry, ok := data.GetAccount()
	if !ok {
		return nil, errors.Errorf("ledger entry for %s is %s, not an account", address, data.Type)
	}
	return &txnbuild.SimpleAccount{
		AccountID: address,
		Sequence:  int64(entry.SeqNum),
	}, nil
}

// AccountKey returns the base64 XDR ledger key of an account.
func AccountKey(address string) (string, error) {
	var id xdr.AccountId
	if err := id.SetAddress(address); err != nil {
		return "", errors.Wrapf(err, "invalid account address %q", address)
	}
	key := xdr.LedgerKey{
		Type:    xdr.LedgerEntryTypeAccount,
		Account: &xdr.LedgerKeyAccount{AccountId: id},
	}
	return xdr.MarshalBase64(key)
}

// DecodeEntryData decodes the xdr field of a getLedgerEntries entry.
func DecodeEntryData(encoded string) (xdr.LedgerEntryData, error) {
	var data xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(encoded, &data); err != nil {
		return data, errors.Wrap(err, "decoding ledger entry data")
	}
	return data, nil
}
