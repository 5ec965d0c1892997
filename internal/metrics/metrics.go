// Package metrics exports transaction outcomes and ledger entry lifetimes
// to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dotandev/sorolend/internal/expiry"
	"github.com/dotandev/sorolend/internal/invoke"
)

// Metrics used for prometheus
type Metrics struct {
	Transactions *prometheus.CounterVec
	// EntryTTL is the remaining lifetime of live entries in seconds.
	EntryTTL *prometheus.GaugeVec
	// EntryExpired is 1 for expired or missing entries and 0 for live ones.
	EntryExpired *prometheus.GaugeVec
	// LastCheck is the unix time of the last completed inspection.
	LastCheck prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sorolend_transactions_total",
				Help: "Submitted transactions by contract method and terminal status.",
			},
			[]string{"method", "status"},
		),
		EntryTTL: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sorolend_ledger_entry_ttl_seconds",
				Help: "Seconds until a watched ledger entry expires.",
			},
			[]string{"label"},
		),
		EntryExpired: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sorolend_ledger_entry_expired",
				Help: "1 if a watched ledger entry is expired or missing.",
			},
			[]string{"label"},
		),
		LastCheck: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sorolend_last_expiration_check_timestamp_seconds",
				Help: "Unix time of the last successful expiration check.",
			},
		),
	}
	for _, c := range []prometheus.Collector{m.Transactions, m.EntryTTL, m.EntryExpired, m.LastCheck} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveOutcome counts a terminal outcome. It fits invoke.WithOutcomeObserver.
func (m *Metrics) ObserveOutcome(req invoke.Request, out invoke.Outcome) {
	m.Transactions.WithLabelValues(req.Method, out.Status.String()).Inc()
}

// ObserveReport replaces the entry gauges with the state in report.
func (m *Metrics) ObserveReport(report expiry.Report, unixNow int64) {
	m.EntryTTL.Reset()
	m.EntryExpired.Reset()
	for label, exp := range report {
		switch exp.State {
		case expiry.StateLive:
			m.EntryTTL.WithLabelValues(label).Set(exp.Remaining.Seconds())
			m.EntryExpired.WithLabelValues(label).Set(0)
		case expiry.StateExpired, expiry.StateNotFound:
			m.EntryTTL.WithLabelValues(label).Set(0)
			m.EntryExpired.WithLabelValues(label).Set(1)
		}
	}
	m.LastCheck.Set(float64(unixNow))
}
