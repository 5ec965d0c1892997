package expiry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stellar/go/strkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/sorolend/internal/keys"
	"github.com/dotandev/sorolend/internal/rpc"
)

type fakeReader struct {
	latest uint32
	ttl    map[string]*uint32
	calls  [][]string
	err    error
}

func (f *fakeReader) GetLedgerEntries(_ context.Context, raw []string) (*rpc.GetLedgerEntriesResponse, error) {
	f.calls = append(f.calls, raw)
	if f.err != nil {
		return nil, f.err
	}
	resp := &rpc.GetLedgerEntriesResponse{LatestLedger: f.latest}
	for _, k := range raw {
		if ttl, ok := f.ttl[k]; ok {
			resp.Entries = append(resp.Entries, rpc.LedgerEntryResult{Key: k, LiveUntilLedgerSeq: ttl})
		}
	}
	return resp, nil
}

func ledger(n uint32) *uint32 { return &n }

func codec(t *testing.T) *keys.Codec {
	t.Helper()
	id, err := strkey.Encode(strkey.VersionByteContract, make([]byte, 32))
	require.NoError(t, err)
	c, err := keys.NewCodec(id)
	require.NoError(t, err)
	return c
}

func symbol(t *testing.T, c *keys.Codec, name string) keys.Descriptor {
	t.Helper()
	d, err := c.Symbol(name)
	require.NoError(t, err)
	return d
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{LedgersToDuration(17280), "1 days"},
		{0, "0 hours"},
		{59 * time.Minute, "0 hours"},
		{2 * time.Hour, "2 hours"},
		{8 * day, "1 weeks 1 days"},
		{30*day + 2*week + 3*time.Hour, "1 months 2 weeks 3 hours"},
		{LedgersToDuration(30 * 17280), "1 months"},
		{65 * day, "2 months 5 days"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatDuration(c.in), c.in.String())
	}
}

func TestCheckClassifiesEntries(t *testing.T) {
	c := codec(t)
	admin := symbol(t, c, "Admin")
	prices := symbol(t, c, "Prices")
	tokens := symbol(t, c, "SupportedTokensList")
	reserve := symbol(t, c, "ReserveConfiguration")
	liquidator := symbol(t, c, "Liquidator")

	reader := &fakeReader{latest: 1000, ttl: map[string]*uint32{
		admin.String():   ledger(1000 + 17280),
		prices.String():  ledger(1000),
		tokens.String():  ledger(900),
		reserve.String(): nil,
	}}
	report, err := NewInspector(reader, nil).Check(context.Background(), map[string]keys.Descriptor{
		"Admin":                admin,
		"Prices":               prices,
		"SupportedTokensList":  tokens,
		"ReserveConfiguration": reserve,
		"Liquidator":           liquidator,
	})
	require.NoError(t, err)

	assert.Equal(t, StateLive, report["Admin"].State)
	assert.Equal(t, "1 days", report["Admin"].String())
	assert.Equal(t, uint32(18280), report["Admin"].LiveUntil)

	assert.Equal(t, StateExpired, report["Prices"].State)
	assert.Equal(t, "Expired", report["Prices"].String())
	assert.Equal(t, StateExpired, report["SupportedTokensList"].State)

	assert.Equal(t, StateNoTTL, report["ReserveConfiguration"].State)

	assert.Equal(t, StateNotFound, report["Liquidator"].State)
	assert.Equal(t, "Not found", report["Liquidator"].String())

	assert.Equal(t, []string{"Admin", "Liquidator", "Prices", "ReserveConfiguration", "SupportedTokensList"}, report.Labels())
}

func TestCheckQueriesOnceWithDistinctKeys(t *testing.T) {
	c := codec(t)
	admin := symbol(t, c, "Admin")
	reader := &fakeReader{latest: 10, ttl: map[string]*uint32{admin.String(): ledger(20)}}

	report, err := NewInspector(reader, nil).Check(context.Background(), map[string]keys.Descriptor{
		"admin":       admin,
		"admin again": admin,
		"prices":      symbol(t, c, "Prices"),
	})
	require.NoError(t, err)
	require.Len(t, reader.calls, 1)
	assert.Len(t, reader.calls[0], 2)
	assert.Equal(t, report["admin"], report["admin again"])
}

func TestCheckIsIdempotent(t *testing.T) {
	c := codec(t)
	labeled := map[string]keys.Descriptor{"Admin": symbol(t, c, "Admin")}
	reader := &fakeReader{latest: 500, ttl: map[string]*uint32{labeled["Admin"].String(): ledger(5000)}}
	inspector := NewInspector(reader, nil)

	first, err := inspector.Check(context.Background(), labeled)
	require.NoError(t, err)
	second, err := inspector.Check(context.Background(), labeled)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCheckBatchFailure(t *testing.T) {
	c := codec(t)
	reader := &fakeReader{err: errors.New("connection refused")}

	report, err := NewInspector(reader, nil).Check(context.Background(), map[string]keys.Descriptor{
		"Admin": symbol(t, c, "Admin"),
	})
	assert.Nil(t, report)
	var batch *BatchQueryError
	require.True(t, errors.As(err, &batch))
	assert.Contains(t, batch.Error(), "connection refused")
}

func TestCheckEmptyInputSkipsQuery(t *testing.T) {
	reader := &fakeReader{}
	report, err := NewInspector(reader, nil).Check(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report)
	assert.Empty(t, reader.calls)
}
