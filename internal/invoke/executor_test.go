package invoke

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/dotandev/sorolend/internal/rpc"
	"github.com/dotandev/sorolend/internal/scval"
	"github.com/dotandev/sorolend/internal/signer"
)

// fakeNetwork keeps one account's sequence number and answers the calls the
// executor makes. The sequence advances when a transaction is sent, whatever
// its fate afterwards.
type fakeNetwork struct {
	mu sync.Mutex

	seq         int64
	sim         rpc.SimulateTransactionResponse
	sendStatus  string
	sendResult  string
	txResponses []rpc.GetTransactionResponse

	simulated []*txnbuild.Transaction
	prepared  []*txnbuild.Transaction
	sent      []*txnbuild.Transaction
	polls     int
}

func newFakeNetwork(t *testing.T) *fakeNetwork {
	t.Helper()
	retval, err := xdr.MarshalBase64(scval.U32(7))
	require.NoError(t, err)
	return &fakeNetwork{
		seq: 41,
		sim: rpc.SimulateTransactionResponse{
			TransactionData: resourceData(t, 300),
			MinResourceFee:  58_181,
			Results:         []rpc.SimulateHostFunctionResult{{XDR: retval}},
			LatestLedger:    1000,
		},
		sendStatus:  rpc.StatusPending,
		txResponses: []rpc.GetTransactionResponse{{Status: rpc.StatusSuccess, Ledger: 1002}},
	}
}

func resourceData(t *testing.T, resourceFee int64) string {
	t.Helper()
	var data xdr.SorobanTransactionData
	data.Resources.Footprint.ReadOnly = []xdr.LedgerKey{{
		Type:         xdr.LedgerEntryTypeContractCode,
		ContractCode: &xdr.LedgerKeyContractCode{Hash: xdr.Hash{1}},
	}}
	data.Resources.Instructions = 2_000_000
	data.ResourceFee = xdr.Int64(resourceFee)
	encoded, err := xdr.MarshalBase64(data)
	require.NoError(t, err)
	return encoded
}

func (f *fakeNetwork) GetAccount(_ context.Context, address string) (*txnbuild.SimpleAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &txnbuild.SimpleAccount{AccountID: address, Sequence: f.seq}, nil
}

func (f *fakeNetwork) SimulateTransaction(_ context.Context, tx *txnbuild.Transaction) (*rpc.Simulation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.simulated = append(f.simulated, tx)
	return f.sim.Decode()
}

func (f *fakeNetwork) PrepareTransaction(_ context.Context, tx *txnbuild.Transaction) (*txnbuild.Transaction, error) {
	f.mu.Lock()
	f.prepared = append(f.prepared, tx)
	f.mu.Unlock()
	sim, err := f.sim.Decode()
	if err != nil {
		return nil, err
	}
	return rpc.Assemble(tx, sim)
}

func (f *fakeNetwork) SendTransaction(_ context.Context, tx *txnbuild.Transaction) (*rpc.SendTransactionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.seq = tx.SourceAccount().Sequence
	return &rpc.SendTransactionResponse{Status: f.sendStatus, Hash: "a1b2", ErrorResultXDR: f.sendResult}, nil
}

func (f *fakeNetwork) GetTransaction(_ context.Context, hash string) (*rpc.GetTransactionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	if i >= len(f.txResponses) {
		i = len(f.txResponses) - 1
	}
	f.polls++
	resp := f.txResponses[i]
	return &resp, nil
}

func testContract(t *testing.T) string {
	t.Helper()
	id, err := strkey.Encode(strkey.VersionByteContract, make([]byte, 32))
	require.NoError(t, err)
	return id
}

func testExecutor(net *fakeNetwork, opts ...ExecutorOption) *Executor {
	opts = append([]ExecutorOption{WithPollInterval(time.Millisecond)}, opts...)
	return NewExecutor(net, signer.KeypairSigner{Passphrase: network.TestNetworkPassphrase}, opts...)
}

func failedResult(t *testing.T) string {
	t.Helper()
	encoded, err := xdr.MarshalBase64(xdr.TransactionResult{
		FeeCharged: 100,
		Result:     xdr.TransactionResultResult{Code: xdr.TransactionResultCodeTxBadSeq},
	})
	require.NoError(t, err)
	return encoded
}

func TestExecuteBuildsWithSimulatedFee(t *testing.T) {
	net := newFakeNetwork(t)
	kp := keypair.MustRandom()
	req := NewRequest(testContract(t), "GetTVL", kp.Address(), nil, nil)

	out, err := testExecutor(net).Execute(context.Background(), req, signer.FromKeypair(kp))
	require.NoError(t, err)
	require.Len(t, net.prepared, 1)
	assert.Equal(t, int64(58_181), net.prepared[0].BaseFee())
	assert.Equal(t, PlaceholderFee, net.simulated[0].BaseFee())

	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, "a1b2", out.Hash)
	assert.Equal(t, int64(58_181+300), out.Fee)
	assert.Equal(t, uint32(1002), out.Ledger)
	assert.Equal(t, uint32(7), out.ReturnValue)

	require.Len(t, net.sent, 1)
	assert.Len(t, net.sent[0].Signatures(), 1)
}

func TestExecuteSetsValidityWindow(t *testing.T) {
	net := newFakeNetwork(t)
	kp := keypair.MustRandom()
	req := NewRequest(testContract(t), "GetTVL", kp.Address(), nil, nil)

	_, err := testExecutor(net, WithValidityLedgers(5)).Execute(context.Background(), req, signer.FromKeypair(kp))
	require.NoError(t, err)

	env := net.prepared[0].ToXDR()
	require.NotNil(t, env.V1)
	require.NotNil(t, env.V1.Tx.Cond.V2)
	require.NotNil(t, env.V1.Tx.Cond.V2.LedgerBounds)
	assert.Equal(t, xdr.Uint32(1005), env.V1.Tx.Cond.V2.LedgerBounds.MaxLedger)
}

func TestExecuteReturnValueFromMeta(t *testing.T) {
	net := newFakeNetwork(t)
	sym := xdr.ScSymbol("done")
	meta, err := xdr.MarshalBase64(xdr.TransactionMeta{
		V: 3,
		V3: &xdr.TransactionMetaV3{
			SorobanMeta: &xdr.SorobanTransactionMeta{ReturnValue: xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &sym}},
		},
	})
	require.NoError(t, err)
	net.txResponses = []rpc.GetTransactionResponse{{Status: rpc.StatusSuccess, ResultMetaXDR: meta}}

	kp := keypair.MustRandom()
	out, err := testExecutor(net).Execute(context.Background(),
		NewRequest(testContract(t), "Deposit", kp.Address(), nil, nil), signer.FromKeypair(kp))
	require.NoError(t, err)
	assert.Equal(t, "done", out.ReturnValue)
}

func TestExecuteFailedStatusIsRejected(t *testing.T) {
	net := newFakeNetwork(t)
	net.txResponses = []rpc.GetTransactionResponse{
		{Status: rpc.StatusNotFound, LatestLedger: 1001},
		{Status: rpc.StatusFailed, Ledger: 1002, ResultXDR: failedResult(t)},
	}
	var observed []Outcome
	kp := keypair.MustRandom()
	ex := testExecutor(net, WithOutcomeObserver(func(_ Request, out Outcome) {
		observed = append(observed, out)
	}))

	out, err := ex.Execute(context.Background(),
		NewRequest(testContract(t), "Borrow", kp.Address(), nil, nil), signer.FromKeypair(kp))
	require.Error(t, err)
	require.NotNil(t, out)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Contains(t, out.Reason, "TxBadSeq")

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, rpc.StatusFailed, rejected.Status)
	assert.Equal(t, "a1b2", rejected.Hash)
	assert.Equal(t, out.Reason, rejected.Diagnostic)

	require.Len(t, observed, 1)
	assert.Equal(t, StatusFailed, observed[0].Status)
	assert.Equal(t, 2, net.polls)
}

func TestExecuteSendErrorIsRejectedWithoutPolling(t *testing.T) {
	net := newFakeNetwork(t)
	net.sendStatus = rpc.StatusError
	net.sendResult = failedResult(t)
	kp := keypair.MustRandom()

	out, err := testExecutor(net).Execute(context.Background(),
		NewRequest(testContract(t), "Repay", kp.Address(), nil, nil), signer.FromKeypair(kp))
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, StatusError, out.Status)
	assert.Equal(t, rpc.StatusError, rejected.Status)
	assert.Zero(t, net.polls)
}

func TestExecuteTryAgainLaterIsRejectedWithoutPolling(t *testing.T) {
	net := newFakeNetwork(t)
	net.sendStatus = rpc.StatusTryAgainLater
	net.txResponses = []rpc.GetTransactionResponse{{Status: rpc.StatusNotFound, LatestLedger: 1012}}
	kp := keypair.MustRandom()

	out, err := testExecutor(net).Execute(context.Background(),
		NewRequest(testContract(t), "Borrow", kp.Address(), nil, nil), signer.FromKeypair(kp))
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, StatusError, out.Status)
	assert.Equal(t, rpc.StatusTryAgainLater, rejected.Status)
	assert.Equal(t, "a1b2", rejected.Hash)
	assert.Equal(t, "server busy, try again later", out.Reason)
	assert.Zero(t, net.polls)
}

func TestSequentialExecutesConsumeSequenceNumbers(t *testing.T) {
	net := newFakeNetwork(t)
	net.txResponses = []rpc.GetTransactionResponse{{Status: rpc.StatusFailed, ResultXDR: failedResult(t)}}
	kp := keypair.MustRandom()
	ex := testExecutor(net)
	req := NewRequest(testContract(t), "Redeem", kp.Address(), nil, nil)

	_, err := ex.Execute(context.Background(), req, signer.FromKeypair(kp))
	require.Error(t, err)

	net.txResponses = []rpc.GetTransactionResponse{{Status: rpc.StatusSuccess}}
	net.polls = 0
	_, err = ex.Execute(context.Background(), req, signer.FromKeypair(kp))
	require.NoError(t, err)

	require.Len(t, net.sent, 2)
	assert.Equal(t, int64(42), net.sent[0].SourceAccount().Sequence)
	assert.Equal(t, int64(43), net.sent[1].SourceAccount().Sequence)
}

func TestExecuteValidityWindowExpires(t *testing.T) {
	net := newFakeNetwork(t)
	net.txResponses = []rpc.GetTransactionResponse{
		{Status: rpc.StatusNotFound, LatestLedger: 1005},
		{Status: rpc.StatusNotFound, LatestLedger: 1011},
	}
	var statuses []string
	kp := keypair.MustRandom()
	ex := testExecutor(net, WithPollObserver(func(_ int, status string) {
		statuses = append(statuses, status)
	}))

	out, err := ex.Execute(context.Background(),
		NewRequest(testContract(t), "UpdatePrice", kp.Address(), nil, nil), signer.FromKeypair(kp))
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, StatusError, out.Status)
	assert.Equal(t, "validity window expired", out.Reason)
	assert.Equal(t, []string{rpc.StatusNotFound, rpc.StatusNotFound}, statuses)
}

func TestExecuteUnknownStatusStillHonoursValidityWindow(t *testing.T) {
	net := newFakeNetwork(t)
	net.txResponses = []rpc.GetTransactionResponse{
		{Status: "QUEUED", LatestLedger: 1004},
		{Status: "QUEUED", LatestLedger: 1011},
	}
	kp := keypair.MustRandom()

	out, err := testExecutor(net).Execute(context.Background(),
		NewRequest(testContract(t), "Deposit", kp.Address(), nil, nil), signer.FromKeypair(kp))
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, StatusError, out.Status)
	assert.Equal(t, "validity window expired", out.Reason)
	assert.Equal(t, 2, net.polls)
}

func TestExecuteWithoutTransactionDataNeverSends(t *testing.T) {
	net := newFakeNetwork(t)
	net.sim.TransactionData = ""
	kp := keypair.MustRandom()

	out, err := testExecutor(net).Execute(context.Background(),
		NewRequest(testContract(t), "Deposit", kp.Address(), nil, nil), signer.FromKeypair(kp))
	assert.Nil(t, out)
	var unavailable *SimulationUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "Deposit", unavailable.Method)
	assert.Empty(t, net.sent)
}

func TestExecuteRejectsForeignCredential(t *testing.T) {
	net := newFakeNetwork(t)
	req := NewRequest(testContract(t), "Deposit", keypair.MustRandom().Address(), nil, nil)

	_, err := testExecutor(net).Execute(context.Background(), req, signer.FromKeypair(keypair.MustRandom()))
	require.Error(t, err)
	assert.Empty(t, net.simulated)
}

func TestExecuteCancelledWhilePending(t *testing.T) {
	net := newFakeNetwork(t)
	net.txResponses = []rpc.GetTransactionResponse{{Status: rpc.StatusNotFound, LatestLedger: 1000}}
	kp := keypair.MustRandom()

	ctx, cancel := context.WithCancel(context.Background())
	ex := testExecutor(net, WithPollObserver(func(attempt int, _ string) {
		if attempt == 3 {
			cancel()
		}
	}))
	out, err := ex.Execute(ctx, NewRequest(testContract(t), "Borrow", kp.Address(), nil, nil), signer.FromKeypair(kp))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out)
	assert.Equal(t, StatusPending, out.Status)
	assert.False(t, out.Status.Terminal())
}

func TestExecuteRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	net := newFakeNetwork(t)
	kp := keypair.MustRandom()
	_, err := testExecutor(net).Execute(context.Background(),
		NewRequest(testContract(t), "GetTVL", kp.Address(), nil, nil), signer.FromKeypair(kp))
	require.NoError(t, err)

	var names []string
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "invoke.Execute")
	assert.Contains(t, names, "invoke.Simulate")
}
