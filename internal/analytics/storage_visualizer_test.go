package analytics

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dotandev/sorolend/internal/expiry"
	"github.com/dotandev/sorolend/internal/invoke"
)

func TestPrintSimulationReport(t *testing.T) {
	var buf bytes.Buffer
	PrintSimulationReport(&buf, "deposit", &invoke.SimulationResult{
		MinimumFee:      58_181,
		CPUInstructions: 1_200_000,
		ReadFootprint:   3,
		WriteFootprint:  2,
		ReturnValue:     uint32(7),
		RestoreRequired: true,
	})
	out := buf.String()
	assert.Contains(t, out, "Simulation: deposit")
	assert.Contains(t, out, "Minimum fee:  58181 stroops")
	assert.Contains(t, out, "3 read, 2 write")
	assert.Contains(t, out, "Returns:      7")
	assert.Contains(t, out, "must be restored")
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	PrintOutcome(&buf, "borrow", invoke.Outcome{Status: invoke.StatusFailed, Hash: "abc", Fee: 100, Reason: "txBadSeq"})
	out := buf.String()
	assert.Contains(t, out, "borrow: failed")
	assert.Contains(t, out, "Reason: txBadSeq")
	assert.NotContains(t, out, "Ledger:")
}

func TestPrintExpirationReport(t *testing.T) {
	var buf bytes.Buffer
	PrintExpirationReport(&buf, expiry.Report{
		"Prices": {State: expiry.StateLive, Remaining: 24 * time.Hour},
		"Admin":  {State: expiry.StateExpired},
		"Gone":   {State: expiry.StateNotFound},
	})
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Equal(t, "! Admin   Expired", string(lines[2]))
	assert.Equal(t, "! Gone    Not found", string(lines[3]))
	assert.Equal(t, "  Prices  1 days", string(lines[4]))
	assert.Equal(t, "2 of 3 entries expired or missing", string(lines[len(lines)-1]))
}
