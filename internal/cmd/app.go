package cmd

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stellar/go/support/log"

	"github.com/dotandev/sorolend/internal/config"
	"github.com/dotandev/sorolend/internal/expiry"
	"github.com/dotandev/sorolend/internal/invoke"
	"github.com/dotandev/sorolend/internal/keys"
	"github.com/dotandev/sorolend/internal/lending"
	"github.com/dotandev/sorolend/internal/metrics"
	"github.com/dotandev/sorolend/internal/rpc"
	"github.com/dotandev/sorolend/internal/signer"
	"github.com/dotandev/sorolend/internal/watchlist"
)

// app wires the services the commands use from one config.
type app struct {
	cfg      config.Config
	log      *log.Entry
	rpc      *rpc.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	progress *progress
	executor *invoke.Executor
	watch    *watchlist.Store
}

func newApp(cfg config.Config, logger *log.Entry) (*app, error) {
	client := rpc.NewClient(cfg.RPCURL,
		rpc.WithRateLimit(cfg.RequestsPerSecond, 1),
		rpc.WithLogger(logger),
	)

	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return nil, errors.Wrap(err, "registering metrics")
	}

	estOpts := []invoke.EstimatorOption{invoke.WithEstimatorLogger(logger)}
	if cfg.FeeMarginPercent > 0 {
		estOpts = append(estOpts, invoke.WithPolicy(invoke.InflateFee(cfg.FeeMarginPercent)))
	}
	prog := newProgress(os.Stderr, logger)
	exec := invoke.NewExecutor(client, signer.KeypairSigner{Passphrase: cfg.NetworkPassphrase},
		invoke.WithEstimator(invoke.NewEstimator(client, estOpts...)),
		invoke.WithPollInterval(cfg.PollInterval),
		invoke.WithValidityLedgers(cfg.ValidityLedgers),
		invoke.WithPollObserver(prog.observe),
		invoke.WithOutcomeObserver(m.ObserveOutcome),
		invoke.WithLogger(logger),
	)

	return &app{
		cfg:      cfg,
		log:      logger,
		rpc:      client,
		registry: registry,
		metrics:  m,
		progress: prog,
		executor: exec,
	}, nil
}

func (a *app) close() {
	a.progress.done()
	if a.watch != nil {
		if err := a.watch.Close(); err != nil {
			a.log.WithField("err", err).Warn("closing watch list")
		}
		a.watch = nil
	}
}

// credential loads the signing key of role ("admin" or "user").
func (a *app) credential(role string) (signer.Credential, error) {
	secret, err := a.cfg.Secret(role)
	if err != nil {
		return signer.Credential{}, err
	}
	return signer.ParseSecret(secret)
}

// querySource is the account queries are simulated from: the admin when
// configured, otherwise the user.
func (a *app) querySource() (string, error) {
	for _, role := range []string{"admin", "user"} {
		if cred, err := a.credential(role); err == nil {
			return cred.Address(), nil
		}
	}
	return "", errors.New("queries need an existing account: set the admin or user secret")
}

// pool returns a lending client submitting through exec.
func (a *app) pool(exec lending.Executor) (*lending.Client, error) {
	contract, err := a.cfg.RequireContract()
	if err != nil {
		return nil, err
	}
	source, err := a.querySource()
	if err != nil {
		return nil, err
	}
	return lending.NewClient(contract, source, exec, a.executor.Estimator()), nil
}

func (a *app) watchlist() (*watchlist.Store, error) {
	if a.watch == nil {
		s, err := watchlist.Open(a.cfg.WatchlistPath)
		if err != nil {
			return nil, err
		}
		a.watch = s
	}
	return a.watch, nil
}

func (a *app) inspector() *expiry.Inspector {
	return expiry.NewInspector(a.rpc, a.log)
}

// related are the contracts besides the pool whose code is watched.
func (a *app) related() map[string]string {
	out := make(map[string]string, len(a.cfg.Tokens)+1)
	for name, id := range a.cfg.Tokens {
		out[name] = id
	}
	if a.cfg.FaucetAddress != "" {
		out["Faucet"] = a.cfg.FaucetAddress
	}
	return out
}

// descriptors gathers the pool's watch set for users and, when withList is
// set, every watch list entry. Watch list labels win on collision.
func (a *app) descriptors(ctx context.Context, users []string, withList bool) (map[string]keys.Descriptor, error) {
	out := map[string]keys.Descriptor{}
	if a.cfg.ContractAddress != "" {
		set, err := lending.DefaultWatchSet(a.cfg.ContractAddress, users, a.related()).Descriptors(ctx, a.rpc)
		if err != nil {
			return nil, err
		}
		out = set
	} else if len(users) > 0 {
		return nil, errors.New("per-user keys need the contract address")
	}

	if withList {
		store, err := a.watchlist()
		if err != nil {
			return nil, err
		}
		listed, err := store.Descriptors(ctx, a.rpc)
		if err != nil {
			return nil, err
		}
		for label, d := range listed {
			if _, ok := out[label]; ok {
				a.log.WithField("label", label).Warn("watch list entry shadows a pool key")
			}
			out[label] = d
		}
	}
	if len(out) == 0 {
		return nil, errors.New("nothing to inspect: set the contract address or add watch list entries")
	}
	return out, nil
}
