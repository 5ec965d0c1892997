package invoke

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stellar/go/support/log"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotandev/sorolend/internal/rpc"
)

var tracer = otel.Tracer("github.com/dotandev/sorolend/internal/invoke")

// Simulator is the part of the RPC service simulation needs.
type Simulator interface {
	GetAccount(ctx context.Context, address string) (*txnbuild.SimpleAccount, error)
	SimulateTransaction(ctx context.Context, tx *txnbuild.Transaction) (*rpc.Simulation, error)
}

// SimulationPolicy may adjust a simulation result before it is used. The
// adjusted MinimumFee is the fee the built transaction pays.
type SimulationPolicy func(ctx context.Context, req Request, res *SimulationResult) error

// InflateFee raises the minimum fee by percent. Accounts touching a contract
// for the first time sometimes need the margin.
func InflateFee(percent int64) SimulationPolicy {
	return func(_ context.Context, _ Request, res *SimulationResult) error {
		if percent < 0 {
			return errors.Errorf("negative fee margin %d%%", percent)
		}
		res.MinimumFee += res.MinimumFee * percent / 100
		return nil
	}
}

type Estimator struct {
	rpc    Simulator
	policy SimulationPolicy
	log    *log.Entry
}

type EstimatorOption func(*Estimator)

func WithPolicy(p SimulationPolicy) EstimatorOption {
	return func(e *Estimator) {
		e.policy = p
	}
}

func WithEstimatorLogger(l *log.Entry) EstimatorOption {
	return func(e *Estimator) {
		if l != nil {
			e.log = l
		}
	}
}

func NewEstimator(rpc Simulator, opts ...EstimatorOption) *Estimator {
	e := &Estimator{rpc: rpc, log: log.DefaultLogger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Simulate runs req against current ledger state without submitting it.
// Every call reaches the network; nothing is cached.
func (e *Estimator) Simulate(ctx context.Context, req Request) (*SimulationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	op, err := req.operation()
	if err != nil {
		return nil, err
	}
	return e.simulate(ctx, req, op)
}

func (e *Estimator) simulate(ctx context.Context, req Request, op txnbuild.Operation) (res *SimulationResult, err error) {
	ctx, span := tracer.Start(ctx, "invoke.Simulate", trace.WithAttributes(
		attribute.String("contract", req.Contract),
		attribute.String("method", req.Method),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int64("min_fee", res.MinimumFee))
		}
		span.End()
	}()

	account, err := e.rpc.GetAccount(ctx, req.Invoker)
	if err != nil {
		return nil, errors.Wrapf(err, "simulating %s", req.Method)
	}
	tx, err := buildTransaction(account, op, PlaceholderFee, 0)
	if err != nil {
		return nil, err
	}

	sim, err := e.rpc.SimulateTransaction(ctx, tx)
	if err != nil {
		return nil, errors.Wrapf(err, "simulating %s", req.Method)
	}
	if sim.Error != "" {
		return nil, &SimulationUnavailableError{Method: req.Method, Reason: sim.Error}
	}
	if sim.TransactionData == nil {
		return nil, &SimulationUnavailableError{Method: req.Method, Reason: "no transaction data in response"}
	}

	res = &SimulationResult{
		MinimumFee:      sim.MinResourceFee,
		ReadFootprint:   sim.ReadFootprint,
		WriteFootprint:  sim.WriteFootprint,
		CPUInstructions: sim.CPUInstructions,
		MemoryBytes:     sim.MemoryBytes,
		LatestLedger:    sim.LatestLedger,
		RestoreRequired: sim.RestoreRequired,
	}
	if sim.Result != nil && sim.Result.Type != xdr.ScValTypeScvVoid {
		res.ReturnValue, err = req.DecodeValue(*sim.Result)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %s result", req.Method)
		}
	}
	if e.policy != nil {
		if err := e.policy(ctx, req, res); err != nil {
			return nil, errors.Wrap(err, "applying simulation policy")
		}
	}

	e.log.WithFields(log.F{
		"method":  req.Method,
		"fee":     res.MinimumFee,
		"reads":   res.ReadFootprint,
		"writes":  res.WriteFootprint,
		"cpu":     res.CPUInstructions,
		"ledger":  res.LatestLedger,
		"invoker": req.Invoker,
	}).Debug("simulated")
	return res, nil
}
