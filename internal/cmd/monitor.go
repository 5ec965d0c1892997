package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/stellar/go/support/log"
	"golang.org/x/sync/errgroup"
)

func newMonitorCommand(s *session) *cobra.Command {
	var (
		sc       scope
		interval time.Duration
	)
	c := &cobra.Command{
		Use:   "monitor",
		Short: "Inspect expirations periodically and serve them as prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return errors.Errorf("interval must be positive, got %s", interval)
			}
			a, err := s.services()
			if err != nil {
				return err
			}
			return a.monitor(cmd.Context(), sc, interval)
		},
	}
	sc.bind(c)
	c.Flags().DurationVar(&interval, "interval", time.Minute, "time between inspections")
	return c
}

// monitor serves the metrics registry and refreshes the expiration gauges
// every interval until ctx ends. A failed inspection keeps the previous
// gauges and is retried on the next tick.
func (a *app) monitor(ctx context.Context, sc scope, interval time.Duration) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serving metrics")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		a.log.WithFields(log.F{"addr": a.cfg.MetricsAddr, "interval": interval}).Info("monitoring expirations")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			a.refresh(ctx, sc)
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}

func (a *app) refresh(ctx context.Context, sc scope) {
	report, _, err := a.inspect(ctx, sc)
	if err != nil {
		if ctx.Err() == nil {
			a.log.WithField("err", err).Warn("expiration check failed")
		}
		return
	}
	a.metrics.ObserveReport(report, time.Now().Unix())
}
