// Package cmd is the sorolend command tree.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stellar/go/support/log"

	"github.com/dotandev/sorolend/internal/config"
	"github.com/dotandev/sorolend/internal/invoke"
	"github.com/dotandev/sorolend/internal/telemetry"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitRejected    = 2
	ExitUnavailable = 3
)

// Execute runs the command line with the process arguments until it
// finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root, s := newRoot()
	defer s.close(ctx)
	return root.ExecuteContext(ctx)
}

// ExitCode maps an error from Execute to the process exit status. A
// transaction the network rejected and a simulation that produced nothing
// usable get their own codes.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var rejected *invoke.RejectedError
	if errors.As(err, &rejected) {
		return ExitRejected
	}
	var unavailable *invoke.SimulationUnavailableError
	if errors.As(err, &unavailable) {
		return ExitUnavailable
	}
	return ExitFailure
}

// session is what every command shares once flags are parsed.
type session struct {
	configPath string
	logLevel   string

	cfg      config.Config
	log      *log.Entry
	shutdown func(context.Context) error
	app      *app
}

func newRoot() (*cobra.Command, *session) {
	s := &session{}
	root := &cobra.Command{
		Use:           "sorolend",
		Short:         "Drive a Soroban lending pool and watch its storage lifetimes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return s.init(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&s.configPath, "config", "", "yaml config file")
	root.PersistentFlags().StringVar(&s.logLevel, "log-level", "", "log level, overrides the config")

	root.AddCommand(
		newInvokeCommand(s),
		newSimulateCommand(s),
		newQueryCommand(s),
		newExpirationsCommand(s),
		newWatchCommand(s),
		newExtendCommand(s),
		newRestoreCommand(s),
		newMonitorCommand(s),
		newHealthCommand(s),
	)
	return root, s
}

func (s *session) init(ctx context.Context) error {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	if s.logLevel != "" {
		cfg.LogLevel = s.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	shutdown, err := telemetry.Setup(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	s.cfg, s.log, s.shutdown = cfg, logger, shutdown
	return nil
}

// close releases the app and flushes pending spans. It is safe to call more
// than once.
func (s *session) close(ctx context.Context) {
	if s.app != nil {
		s.app.close()
		s.app = nil
	}
	if s.shutdown != nil {
		if err := s.shutdown(context.WithoutCancel(ctx)); err != nil {
			s.log.WithField("err", err).Warn("flushing traces")
		}
		s.shutdown = nil
	}
}

// services builds the shared app on first use.
func (s *session) services() (*app, error) {
	if s.app == nil {
		a, err := newApp(s.cfg, s.log)
		if err != nil {
			return nil, err
		}
		s.app = a
	}
	return s.app, nil
}
