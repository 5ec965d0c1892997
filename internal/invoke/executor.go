package invoke

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/stellar/go/support/log"
	"github.com/stellar/go/txnbuild"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotandev/sorolend/internal/rpc"
	"github.com/dotandev/sorolend/internal/signer"
)

const (
	DefaultPollInterval    = time.Second
	DefaultValidityLedgers = 10
)

// RPC is the part of the RPC service submission needs.
type RPC interface {
	Simulator
	PrepareTransaction(ctx context.Context, tx *txnbuild.Transaction) (*txnbuild.Transaction, error)
	SendTransaction(ctx context.Context, tx *txnbuild.Transaction) (*rpc.SendTransactionResponse, error)
	GetTransaction(ctx context.Context, hash string) (*rpc.GetTransactionResponse, error)
}

// PollObserver sees the status reported by every poll.
type PollObserver func(attempt int, status string)

// OutcomeObserver sees every terminal outcome.
type OutcomeObserver func(req Request, out Outcome)

type Executor struct {
	rpc       RPC
	signer    signer.Signer
	estimator *Estimator

	pollInterval    time.Duration
	validityLedgers uint32
	onPoll          PollObserver
	onOutcome       OutcomeObserver
	log             *log.Entry
}

type ExecutorOption func(*Executor)

func WithPollInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithValidityLedgers sets how many ledgers past the simulation ledger a
// submitted transaction stays includable.
func WithValidityLedgers(n uint32) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.validityLedgers = n
		}
	}
}

func WithPollObserver(o PollObserver) ExecutorOption {
	return func(e *Executor) {
		e.onPoll = o
	}
}

func WithOutcomeObserver(o OutcomeObserver) ExecutorOption {
	return func(e *Executor) {
		e.onOutcome = o
	}
}

func WithEstimator(est *Estimator) ExecutorOption {
	return func(e *Executor) {
		if est != nil {
			e.estimator = est
		}
	}
}

func WithLogger(l *log.Entry) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

func NewExecutor(rpc RPC, s signer.Signer, opts ...ExecutorOption) *Executor {
	e := &Executor{
		rpc:             rpc,
		signer:          s,
		pollInterval:    DefaultPollInterval,
		validityLedgers: DefaultValidityLedgers,
		log:             log.DefaultLogger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.estimator == nil {
		e.estimator = NewEstimator(rpc, WithEstimatorLogger(e.log))
	}
	return e
}

// Estimator returns the estimator Execute simulates with.
func (e *Executor) Estimator() *Estimator {
	return e.estimator
}

// Execute submits req signed by cred and waits for it to settle.
//
// A non-nil Outcome is returned once the transaction has been sent, even
// when err is set. Failed and errored outcomes come with a *RejectedError.
// Nothing is retried: once sent, the sequence number is spent whatever
// happens next.
func (e *Executor) Execute(ctx context.Context, req Request, cred signer.Credential) (*Outcome, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	op, err := req.operation()
	if err != nil {
		return nil, err
	}
	return e.run(ctx, "invoke.Execute", req, op, cred)
}

func (e *Executor) run(ctx context.Context, spanName string, req Request, op txnbuild.Operation, cred signer.Credential) (out *Outcome, err error) {
	ctx, span := tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("contract", req.Contract),
		attribute.String("method", req.Method),
	))
	defer func() {
		if out != nil {
			span.SetAttributes(
				attribute.String("tx.hash", out.Hash),
				attribute.String("tx.status", out.Status.String()),
			)
			if out.Status.Terminal() && e.onOutcome != nil {
				e.onOutcome(req, *out)
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if cred.Address() != req.Invoker {
		return nil, errors.Errorf("credential for %s cannot sign for invoker %s", cred.Address(), req.Invoker)
	}

	account, err := e.rpc.GetAccount(ctx, req.Invoker)
	if err != nil {
		return nil, errors.Wrapf(err, "executing %s", req.Method)
	}
	sim, err := e.estimator.simulate(ctx, req, op)
	if err != nil {
		return nil, err
	}

	maxLedger := sim.LatestLedger + e.validityLedgers
	tx, err := buildTransaction(account, op, sim.MinimumFee, maxLedger)
	if err != nil {
		return nil, err
	}
	prepared, err := e.rpc.PrepareTransaction(ctx, tx)
	if err != nil {
		return nil, errors.Wrapf(err, "executing %s", req.Method)
	}
	signed, err := e.signer.Sign(ctx, prepared, cred)
	if err != nil {
		return nil, err
	}

	sent, err := e.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return nil, errors.Wrapf(err, "sending %s", req.Method)
	}
	out = &Outcome{Status: StatusPending, Hash: sent.Hash, Fee: signed.MaxFee()}
	logger := e.log.WithFields(log.F{"method": req.Method, "hash": sent.Hash})
	logger.WithFields(log.F{
		"status":     sent.Status,
		"fee":        out.Fee,
		"max_ledger": maxLedger,
	}).Info("transaction sent")

	switch sent.Status {
	case rpc.StatusError:
		out.Reason = sent.Diagnostic()
	case rpc.StatusTryAgainLater:
		// Not accepted: the sequence number is still unused.
		out.Reason = "server busy, try again later"
		if sent.ErrorResultXDR != "" {
			out.Reason = sent.Diagnostic()
		}
	default:
		return e.poll(ctx, req, sim, out, maxLedger, logger)
	}
	out.Status = StatusError
	logger.WithFields(log.F{"status": sent.Status, "reason": out.Reason}).Warn("transaction refused")
	return out, &RejectedError{Status: sent.Status, Hash: sent.Hash, Diagnostic: out.Reason}
}

func (e *Executor) poll(ctx context.Context, req Request, sim *SimulationResult, out *Outcome, maxLedger uint32, logger *log.Entry) (*Outcome, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return out, errors.Wrapf(ctx.Err(), "waiting for %s", out.Hash)
		case <-ticker.C:
		}

		resp, err := e.rpc.GetTransaction(ctx, out.Hash)
		if err != nil {
			return out, errors.Wrapf(err, "polling %s", out.Hash)
		}
		if e.onPoll != nil {
			e.onPoll(attempt, resp.Status)
		}
		logger.WithFields(log.F{"attempt": attempt, "status": resp.Status}).Debug("polled")

		switch resp.Status {
		case rpc.StatusSuccess:
			out.Status = StatusSuccess
			out.Ledger = resp.Ledger
			out.ReturnValue = sim.ReturnValue
			if val, ok := resp.ReturnValue(); ok {
				decoded, err := req.DecodeValue(*val)
				if err != nil {
					logger.WithField("err", err).Warn("undecodable return value, keeping simulated one")
				} else {
					out.ReturnValue = decoded
				}
			}
			logger.WithField("ledger", out.Ledger).Info("transaction succeeded")
			return out, nil
		case rpc.StatusFailed:
			out.Status = StatusFailed
			out.Ledger = resp.Ledger
			out.Reason = resp.Diagnostic()
			logger.WithField("reason", out.Reason).Warn("transaction failed")
			return out, &RejectedError{Status: resp.Status, Hash: out.Hash, Diagnostic: out.Reason}
		default:
			if resp.LatestLedger > maxLedger {
				out.Status = StatusError
				out.Reason = "validity window expired"
				logger.WithFields(log.F{"latest_ledger": resp.LatestLedger, "status": resp.Status}).Warn("transaction never included")
				return out, &RejectedError{Status: rpc.StatusError, Hash: out.Hash, Diagnostic: out.Reason}
			}
		}
	}
}
