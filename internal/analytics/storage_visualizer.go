// Package analytics renders simulation costs, submission outcomes and ledger
// entry lifetimes for the terminal.
package analytics

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/dotandev/sorolend/internal/expiry"
	"github.com/dotandev/sorolend/internal/invoke"
)

func PrintSimulationReport(w io.Writer, method string, res *invoke.SimulationResult) {
	fmt.Fprintf(w, "🧪 Simulation: %s\n", method)
	fmt.Fprintln(w, "--------------------------------")
	fmt.Fprintf(w, "Minimum fee:  %d stroops\n", res.MinimumFee)
	fmt.Fprintf(w, "CPU:          %d instructions\n", res.CPUInstructions)
	fmt.Fprintf(w, "Memory:       %s\n", humanize.Bytes(res.MemoryBytes))
	fmt.Fprintf(w, "Footprint:    %d read, %d write\n", res.ReadFootprint, res.WriteFootprint)
	fmt.Fprintf(w, "Ledger:       %d\n", res.LatestLedger)
	if res.ReturnValue != nil {
		fmt.Fprintf(w, "Returns:      %v\n", res.ReturnValue)
	}
	if res.RestoreRequired {
		fmt.Fprintln(w, "\n⚠️  archived entries must be restored before submitting")
	}
}

func PrintOutcome(w io.Writer, method string, out invoke.Outcome) {
	fmt.Fprintf(w, "📨 %s: %s\n", method, out.Status)
	fmt.Fprintf(w, "Hash:   %s\n", out.Hash)
	fmt.Fprintf(w, "Fee:    %d stroops\n", out.Fee)
	if out.Ledger != 0 {
		fmt.Fprintf(w, "Ledger: %d\n", out.Ledger)
	}
	if out.ReturnValue != nil {
		fmt.Fprintf(w, "Result: %v\n", out.ReturnValue)
	}
	if out.Reason != "" {
		fmt.Fprintf(w, "Reason: %s\n", out.Reason)
	}
}

// PrintExpirationReport lists entries by label; expired and missing entries
// are flagged.
func PrintExpirationReport(w io.Writer, report expiry.Report) {
	fmt.Fprintln(w, "⏳ Ledger Entry Expirations")
	fmt.Fprintln(w, "--------------------------------")

	width := 0
	for label := range report {
		if len(label) > width {
			width = len(label)
		}
	}

	var attention int
	for _, label := range report.Labels() {
		exp := report[label]
		mark := " "
		if exp.State == expiry.StateExpired || exp.State == expiry.StateNotFound {
			mark = "!"
			attention++
		}
		fmt.Fprintf(w, "%s %-*s  %s\n", mark, width, label, exp)
	}
	if attention > 0 {
		fmt.Fprintf(w, "\n%d of %d entries expired or missing\n", attention, len(report))
	}
}
