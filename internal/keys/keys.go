// Package keys derives the ledger keys a contract's storage occupies. A
// Descriptor wraps the base64 XDR of one LedgerKey; the encoded form is the
// value RPC responses echo back, so it doubles as the correlation handle.
package keys

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stellar/go/xdr"

	"github.com/dotandev/sorolend/internal/rpc"
	"github.com/dotandev/sorolend/internal/scval"
)

type Kind string

const (
	KindContractData     Kind = "contract-data"
	KindContractInstance Kind = "contract-instance"
	KindContractCode     Kind = "contract-code"
)

var (
	// ErrEntryNotFound means the ledger holds no entry for a key that had to
	// be read to derive another one.
	ErrEntryNotFound = errors.New("ledger entry not found")
	// ErrNotWasm means the contract runs a built-in executable and owns no
	// code entry.
	ErrNotWasm = errors.New("contract executable is not wasm")
)

// Descriptor identifies one ledger entry. It is comparable and immutable.
type Descriptor struct {
	Kind Kind
	key  string
}

// String returns the base64 XDR ledger key.
func (d Descriptor) String() string {
	return d.key
}

// LedgerKey decodes the descriptor back into its XDR form.
func (d Descriptor) LedgerKey() (xdr.LedgerKey, error) {
	var key xdr.LedgerKey
	if err := xdr.SafeUnmarshalBase64(d.key, &key); err != nil {
		return key, errors.Wrap(err, "decoding ledger key")
	}
	return key, nil
}

func newDescriptor(kind Kind, key xdr.LedgerKey) (Descriptor, error) {
	encoded, err := xdr.MarshalBase64(key)
	if err != nil {
		return Descriptor{}, errors.Wrap(err, "encoding ledger key")
	}
	return Descriptor{Kind: kind, key: encoded}, nil
}

// Codec builds persistent contract-data keys of one contract.
type Codec struct {
	contract string
	address  xdr.ScAddress
}

func NewCodec(contract string) (*Codec, error) {
	address, err := contractAddress(contract)
	if err != nil {
		return nil, err
	}
	return &Codec{contract: contract, address: address}, nil
}

func (c *Codec) Contract() string {
	return c.contract
}

// Symbol is the key of an entry stored under a unit enum variant, i.e. the
// value Vec[Symbol(name)].
func (c *Codec) Symbol(name string) (Descriptor, error) {
	return c.data(scval.Vec(scval.Symbol(name)))
}

// NamedAddress is the key of a per-address entry, Vec[Symbol(name), Address].
func (c *Codec) NamedAddress(name, address string) (Descriptor, error) {
	addr, err := scval.Address(address)
	if err != nil {
		return Descriptor{}, err
	}
	return c.data(scval.Vec(scval.Symbol(name), addr))
}

func (c *Codec) data(val xdr.ScVal) (Descriptor, error) {
	return newDescriptor(KindContractData, xdr.LedgerKey{
		Type: xdr.LedgerEntryTypeContractData,
		ContractData: &xdr.LedgerKeyContractData{
			Contract:   c.address,
			Key:        val,
			Durability: xdr.ContractDataDurabilityPersistent,
		},
	})
}

// Instance is the key of a contract's instance entry.
func Instance(contract string) (Descriptor, error) {
	address, err := contractAddress(contract)
	if err != nil {
		return Descriptor{}, err
	}
	return newDescriptor(KindContractInstance, xdr.LedgerKey{
		Type: xdr.LedgerEntryTypeContractData,
		ContractData: &xdr.LedgerKeyContractData{
			Contract:   address,
			Key:        xdr.ScVal{Type: xdr.ScValTypeScvLedgerKeyContractInstance},
			Durability: xdr.ContractDataDurabilityPersistent,
		},
	})
}

// EntryReader is the single RPC call Code needs.
type EntryReader interface {
	GetLedgerEntries(ctx context.Context, keys []string) (*rpc.GetLedgerEntriesResponse, error)
}

// Code resolves the wasm hash currently installed for contract and returns
// the key of that code entry.
func Code(ctx context.Context, r EntryReader, contract string) (Descriptor, error) {
	instance, err := Instance(contract)
	if err != nil {
		return Descriptor{}, err
	}
	resp, err := r.GetLedgerEntries(ctx, []string{instance.String()})
	if err != nil {
		return Descriptor{}, errors.Wrapf(err, "reading instance of %s", contract)
	}

	var found *rpc.LedgerEntryResult
	for i := range resp.Entries {
		if resp.Entries[i].Key == instance.String() {
			found = &resp.Entries[i]
			break
		}
	}
	if found == nil {
		return Descriptor{}, errors.Wrapf(ErrEntryNotFound, "instance of %s", contract)
	}

	data, err := rpc.DecodeEntryData(found.XDR)
	if err != nil {
		return Descriptor{}, err
	}
	contractData, ok := data.GetContractData()
	if !ok || contractData.Val.Instance == nil {
		return Descriptor{}, errors.Errorf("entry for %s is not a contract instance", contract)
	}
	exec := contractData.Val.Instance.Executable
	if exec.Type != xdr.ContractExecutableTypeContractExecutableWasm || exec.WasmHash == nil {
		return Descriptor{}, errors.Wrapf(ErrNotWasm, "%s", contract)
	}

	return newDescriptor(KindContractCode, xdr.LedgerKey{
		Type:         xdr.LedgerEntryTypeContractCode,
		ContractCode: &xdr.LedgerKeyContractCode{Hash: *exec.WasmHash},
	})
}

func contractAddress(contract string) (xdr.ScAddress, error) {
	address, err := scval.ScAddress(contract)
	if err != nil {
		return xdr.ScAddress{}, err
	}
	if address.Type != xdr.ScAddressTypeScAddressTypeContract {
		return xdr.ScAddress{}, errors.Errorf("%s is not a contract address", contract)
	}
	return address, nil
}

// Parse wraps an existing base64 XDR ledger key, e.g. one copied from a
// block explorer, and infers its kind.
func Parse(encoded string) (Descriptor, error) {
	var key xdr.LedgerKey
	if err := xdr.SafeUnmarshalBase64(encoded, &key); err != nil {
		return Descriptor{}, errors.Wrap(err, "decoding ledger key")
	}
	switch key.Type {
	case xdr.LedgerEntryTypeContractCode:
		return newDescriptor(KindContractCode, key)
	case xdr.LedgerEntryTypeContractData:
		if key.ContractData.Key.Type == xdr.ScValTypeScvLedgerKeyContractInstance {
			return newDescriptor(KindContractInstance, key)
		}
		return newDescriptor(KindContractData, key)
	default:
		return Descriptor{}, errors.Errorf("ledger key of type %s carries no ttl", key.Type)
	}
}
