// Package expiry reports how long ledger entries have left before they are
// archived.
package expiry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stellar/go/support/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotandev/sorolend/internal/keys"
)

// SecondsPerLedger is the nominal ledger close time.
const SecondsPerLedger = 5

// LedgersPerDay is 17280 at the nominal close time.
const LedgersPerDay = 24 * 60 * 60 / SecondsPerLedger

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
)

var tracer = otel.Tracer("github.com/dotandev/sorolend/internal/expiry")

type State int

const (
	StateLive State = iota
	StateExpired
	StateNotFound
	// StateNoTTL marks an entry the server returned without a live-until
	// ledger.
	StateNoTTL
)

func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateExpired:
		return "expired"
	case StateNotFound:
		return "not found"
	case StateNoTTL:
		return "no ttl"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Expiration is the lifetime status of one entry.
type Expiration struct {
	State State
	// Remaining is only set for live entries.
	Remaining time.Duration
	// LiveUntil is the last ledger the entry is live in, zero when unknown.
	LiveUntil uint32
}

func (e Expiration) String() string {
	switch e.State {
	case StateLive:
		return FormatDuration(e.Remaining)
	case StateExpired:
		return "Expired"
	case StateNotFound:
		return "Not found"
	default:
		return "No TTL"
	}
}

// Report maps caller labels to expirations.
type Report map[string]Expiration

// Labels returns the report's labels in lexical order.
func (r Report) Labels() []string {
	labels := make([]string, 0, len(r))
	for label := range r {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// BatchQueryError means the single ledger-entry query failed. No partial
// report accompanies it.
type BatchQueryError struct {
	Err error
}

func (e *BatchQueryError) Error() string {
	return "querying ledger entries: " + e.Err.Error()
}

func (e *BatchQueryError) Unwrap() error {
	return e.Err
}

type Inspector struct {
	reader keys.EntryReader
	log    *log.Entry
}

func NewInspector(r keys.EntryReader, logger *log.Entry) *Inspector {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &Inspector{reader: r, log: logger}
}

// Check looks up every descriptor in one getLedgerEntries call and reports
// each entry's remaining lifetime relative to the latest ledger the server
// saw. An entry whose live-until ledger equals the latest ledger has
// expired.
func (i *Inspector) Check(ctx context.Context, labeled map[string]keys.Descriptor) (report Report, err error) {
	ctx, span := tracer.Start(ctx, "expiry.Check", trace.WithAttributes(attribute.Int("keys", len(labeled))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	report = make(Report, len(labeled))
	if len(labeled) == 0 {
		return report, nil
	}

	seen := make(map[string]struct{}, len(labeled))
	raw := make([]string, 0, len(labeled))
	for _, d := range labeled {
		if _, ok := seen[d.String()]; ok {
			continue
		}
		seen[d.String()] = struct{}{}
		raw = append(raw, d.String())
	}
	sort.Strings(raw)

	resp, err := i.reader.GetLedgerEntries(ctx, raw)
	if err != nil {
		return nil, &BatchQueryError{Err: err}
	}

	liveUntil := make(map[string]*uint32, len(resp.Entries))
	for _, entry := range resp.Entries {
		liveUntil[entry.Key] = entry.LiveUntilLedgerSeq
	}

	for label, d := range labeled {
		ttl, found := liveUntil[d.String()]
		switch {
		case !found:
			report[label] = Expiration{State: StateNotFound}
		case ttl == nil:
			report[label] = Expiration{State: StateNoTTL}
		default:
			report[label] = classify(*ttl, resp.LatestLedger)
		}
	}

	i.log.WithFields(log.F{
		"keys":          len(raw),
		"found":         len(resp.Entries),
		"latest_ledger": resp.LatestLedger,
	}).Debug("checked expirations")
	span.SetAttributes(attribute.Int64("latest_ledger", int64(resp.LatestLedger)))
	return report, nil
}

func classify(liveUntil, latest uint32) Expiration {
	if liveUntil <= latest {
		return Expiration{State: StateExpired, LiveUntil: liveUntil}
	}
	return Expiration{
		State:     StateLive,
		Remaining: LedgersToDuration(liveUntil - latest),
		LiveUntil: liveUntil,
	}
}

func LedgersToDuration(ledgers uint32) time.Duration {
	return time.Duration(ledgers) * SecondsPerLedger * time.Second
}

// FormatDuration renders d as months (of 30 days), weeks, days and hours,
// largest first, omitting zero units: "1 months 2 weeks 3 hours". Anything
// under an hour renders as "0 hours".
func FormatDuration(d time.Duration) string {
	units := []struct {
		name string
		size time.Duration
	}{
		{"months", month},
		{"weeks", week},
		{"days", day},
		{"hours", time.Hour},
	}

	var parts []string
	for _, u := range units {
		n := d / u.size
		d -= n * u.size
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, u.name))
		}
	}
	if len(parts) == 0 {
		return "0 hours"
	}
	return strings.Join(parts, " ")
}
