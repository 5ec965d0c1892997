package lending

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/dotandev/sorolend/internal/keys"
)

// PoolKeys are the pool's unit storage keys.
var PoolKeys = []string{
	"Admin",
	"Liquidator",
	"TotalBorrowData",
	"Prices",
	"SupportedTokensInfo",
	"SupportedTokensList",
	"LiquidityIndexData",
	"ReserveConfiguration",
	"TokensInterestRateModelParams",
}

// UserKeys are the pool's per-user storage keys.
var UserKeys = []string{
	"UserMMTokenBalance",
	"UserDepositAsCollateral",
	"UserBorrowingInfo",
}

// WatchSet names the storage worth watching: the pool's own keys, the
// per-user keys of Users, and the instance and wasm code of the pool and of
// every contract in Related (by display name).
type WatchSet struct {
	Pool    string
	Users   []string
	Related map[string]string
}

// DefaultWatchSet is the pool's full storage layout plus the code it runs.
func DefaultWatchSet(pool string, users []string, related map[string]string) WatchSet {
	return WatchSet{Pool: pool, Users: users, Related: related}
}

// Descriptors derives every key of the set. Resolving code keys reads each
// contract's instance; contracts that are missing or run a built-in
// executable contribute no code key.
func (w WatchSet) Descriptors(ctx context.Context, r keys.EntryReader) (map[string]keys.Descriptor, error) {
	codec, err := keys.NewCodec(w.Pool)
	if err != nil {
		return nil, err
	}
	out := make(map[string]keys.Descriptor)

	for _, name := range PoolKeys {
		d, err := codec.Symbol(name)
		if err != nil {
			return nil, err
		}
		out[name] = d
	}
	for _, user := range w.Users {
		for _, name := range UserKeys {
			d, err := codec.NamedAddress(name, user)
			if err != nil {
				return nil, err
			}
			out[name+" "+user] = d
		}
	}

	contracts := map[string]string{"Lending": w.Pool}
	for name, id := range w.Related {
		contracts[name] = id
	}
	names := make([]string, 0, len(contracts))
	for name := range contracts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		id := contracts[name]
		instance, err := keys.Instance(id)
		if err != nil {
			return nil, errors.Wrapf(err, "contract %s", name)
		}
		out["Contract "+name] = instance

		if r == nil {
			continue
		}
		code, err := keys.Code(ctx, r, id)
		switch {
		case errors.Is(err, keys.ErrNotWasm), errors.Is(err, keys.ErrEntryNotFound):
			continue
		case err != nil:
			return nil, errors.Wrapf(err, "resolving code of %s", name)
		}
		out["WASM "+name] = code
	}
	return out, nil
}
