// Package scval converts between native Go values and xdr.ScVal, the value
// representation contract calls take as arguments and return as results.
package scval

import (
	"fmt"
	"math/big"

	"github.com/pkg/errors"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

var (
	two64   = new(big.Int).Lsh(big.NewInt(1), 64)
	two128  = new(big.Int).Lsh(big.NewInt(1), 128)
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	mask64  = new(big.Int).Sub(two64, big.NewInt(1))
)

func Symbol(s string) xdr.ScVal {
	sym := xdr.ScSymbol(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}
}

func String(s string) xdr.ScVal {
	str := xdr.ScString(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvString, Str: &str}
}

func U32(v uint32) xdr.ScVal {
	u := xdr.Uint32(v)
	return xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &u}
}

func Bool(v bool) xdr.ScVal {
	return xdr.ScVal{Type: xdr.ScValTypeScvBool, B: &v}
}

func Vec(vals ...xdr.ScVal) xdr.ScVal {
	vec := xdr.ScVec(vals)
	ptr := &vec
	return xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &ptr}
}

// Address encodes a G... account or C... contract strkey.
func Address(addr string) (xdr.ScVal, error) {
	sa, err := ScAddress(addr)
	if err != nil {
		return xdr.ScVal{}, err
	}
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &sa}, nil
}

// ScAddress parses a G... account or C... contract strkey.
func ScAddress(addr string) (xdr.ScAddress, error) {
	if raw, err := strkey.Decode(strkey.VersionByteContract, addr); err == nil {
		var id xdr.ContractId
		copy(id[:], raw)
		return xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeContract, ContractId: &id}, nil
	}
	var id xdr.AccountId
	if err := id.SetAddress(addr); err != nil {
		return xdr.ScAddress{}, errors.Errorf("invalid address %q: want a G... account or C... contract", addr)
	}
	return xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeAccount, AccountId: &id}, nil
}

// AddressString renders sa as its strkey.
func AddressString(sa xdr.ScAddress) (string, error) {
	switch sa.Type {
	case xdr.ScAddressTypeScAddressTypeAccount:
		if sa.AccountId == nil {
			return "", errors.New("account address without id")
		}
		return sa.AccountId.GetAddress()
	case xdr.ScAddressTypeScAddressTypeContract:
		if sa.ContractId == nil {
			return "", errors.New("contract address without id")
		}
		id := *sa.ContractId
		return strkey.Encode(strkey.VersionByteContract, id[:])
	default:
		return "", errors.Errorf("unsupported address type %s", sa.Type)
	}
}

// U128 encodes v, which must be in [0, 2^128).
func U128(v *big.Int) (xdr.ScVal, error) {
	if v == nil || v.Sign() < 0 || v.Cmp(two128) >= 0 {
		return xdr.ScVal{}, errors.Errorf("value %v out of u128 range", v)
	}
	hi := new(big.Int).Rsh(v, 64)
	lo := new(big.Int).And(v, mask64)
	parts := xdr.UInt128Parts{Hi: xdr.Uint64(hi.Uint64()), Lo: xdr.Uint64(lo.Uint64())}
	return xdr.ScVal{Type: xdr.ScValTypeScvU128, U128: &parts}, nil
}

// I128 encodes v, which must fit in a signed 128-bit integer.
func I128(v *big.Int) (xdr.ScVal, error) {
	if v == nil || v.Cmp(minI128) < 0 || v.Cmp(maxI128) > 0 {
		return xdr.ScVal{}, errors.Errorf("value %v out of i128 range", v)
	}
	u := new(big.Int).Set(v)
	if u.Sign() < 0 {
		u.Add(u, two128)
	}
	hi := new(big.Int).Rsh(u, 64).Uint64()
	lo := new(big.Int).And(u, mask64).Uint64()
	parts := xdr.Int128Parts{Hi: xdr.Int64(int64(hi)), Lo: xdr.Uint64(lo)}
	return xdr.ScVal{Type: xdr.ScValTypeScvI128, I128: &parts}, nil
}

// ToNative decodes v into plain Go values: integers up to 64 bits map to
// their Go type, 128 and 256 bit integers to *big.Int, symbols and strings
// to string, addresses to their strkey, vectors to []interface{} and maps to
// map[string]interface{} keyed by the native key's fmt form.
func ToNative(v xdr.ScVal) (interface{}, error) {
	switch v.Type {
	case xdr.ScValTypeScvVoid:
		return nil, nil
	case xdr.ScValTypeScvBool:
		return *v.B, nil
	case xdr.ScValTypeScvU32:
		return uint32(*v.U32), nil
	case xdr.ScValTypeScvI32:
		return int32(*v.I32), nil
	case xdr.ScValTypeScvU64:
		return uint64(*v.U64), nil
	case xdr.ScValTypeScvI64:
		return int64(*v.I64), nil
	case xdr.ScValTypeScvU128:
		return u128ToBig(*v.U128), nil
	case xdr.ScValTypeScvI128:
		return i128ToBig(*v.I128), nil
	case xdr.ScValTypeScvU256:
		p := *v.U256
		return joinWords(false, uint64(p.HiHi), uint64(p.HiLo), uint64(p.LoHi), uint64(p.LoLo)), nil
	case xdr.ScValTypeScvI256:
		p := *v.I256
		return joinWords(true, uint64(p.HiHi), uint64(p.HiLo), uint64(p.LoHi), uint64(p.LoLo)), nil
	case xdr.ScValTypeScvSymbol:
		return string(*v.Sym), nil
	case xdr.ScValTypeScvString:
		return string(*v.Str), nil
	case xdr.ScValTypeScvBytes:
		return []byte(*v.Bytes), nil
	case xdr.ScValTypeScvAddress:
		return AddressString(*v.Address)
	case xdr.ScValTypeScvVec:
		if v.Vec == nil || *v.Vec == nil {
			return []interface{}{}, nil
		}
		vec := **v.Vec
		out := make([]interface{}, 0, len(vec))
		for i, item := range vec {
			native, err := ToNative(item)
			if err != nil {
				return nil, errors.Wrapf(err, "vec[%d]", i)
			}
			out = append(out, native)
		}
		return out, nil
	case xdr.ScValTypeScvMap:
		if v.Map == nil || *v.Map == nil {
			return map[string]interface{}{}, nil
		}
		m := **v.Map
		out := make(map[string]interface{}, len(m))
		for _, entry := range m {
			key, err := ToNative(entry.Key)
			if err != nil {
				return nil, errors.Wrap(err, "map key")
			}
			val, err := ToNative(entry.Val)
			if err != nil {
				return nil, errors.Wrapf(err, "map[%v]", key)
			}
			out[fmt.Sprint(key)] = val
		}
		return out, nil
	default:
		return nil, errors.Errorf("unsupported value type %s", v.Type)
	}
}

// BigInt decodes an integer value of any width into a *big.Int.
func BigInt(v xdr.ScVal) (*big.Int, error) {
	native, err := ToNative(v)
	if err != nil {
		return nil, err
	}
	switch n := native.(type) {
	case *big.Int:
		return n, nil
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), nil
	case int32:
		return big.NewInt(int64(n)), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case int64:
		return big.NewInt(n), nil
	default:
		return nil, errors.Errorf("value of type %s is not an integer", v.Type)
	}
}

func u128ToBig(p xdr.UInt128Parts) *big.Int {
	return joinWords(false, uint64(p.Hi), uint64(p.Lo))
}

func i128ToBig(p xdr.Int128Parts) *big.Int {
	return joinWords(true, uint64(p.Hi), uint64(p.Lo))
}

// joinWords assembles big-endian 64-bit words into an integer, interpreting
// the result as two's complement when signed.
func joinWords(signed bool, words ...uint64) *big.Int {
	out := new(big.Int)
	for _, w := range words {
		out.Lsh(out, 64)
		out.Or(out, new(big.Int).SetUint64(w))
	}
	if signed && len(words) > 0 && words[0]>>63 == 1 {
		out.Sub(out, new(big.Int).Lsh(big.NewInt(1), uint(64*len(words))))
	}
	return out
}
