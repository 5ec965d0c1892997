package invoke

import "fmt"

// Status is the lifecycle state of a submitted transaction.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusFailed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether no further state change can follow s.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Outcome is what Execute observed for one submission.
type Outcome struct {
	Status Status
	Hash   string
	// ReturnValue is set on success.
	ReturnValue interface{}
	// Reason carries the server diagnostic for failed and errored outcomes.
	Reason string
	// Fee is the maximum fee the signed envelope authorised.
	Fee int64
	// Ledger the transaction was applied in, when known.
	Ledger uint32
}

// SimulationResult is what simulating a request revealed.
type SimulationResult struct {
	ReturnValue     interface{}
	MinimumFee      int64
	ReadFootprint   int
	WriteFootprint  int
	CPUInstructions uint64
	MemoryBytes     uint64
	// LatestLedger is the ledger the simulation ran against.
	LatestLedger uint32
	// RestoreRequired means an archived entry must be restored first.
	RestoreRequired bool
}

// SimulationUnavailableError means simulation produced no usable resource or
// fee data.
type SimulationUnavailableError struct {
	Method string
	Reason string
}

func (e *SimulationUnavailableError) Error() string {
	return fmt.Sprintf("simulation of %s unavailable: %s", e.Method, e.Reason)
}

// RejectedError means the network settled a transaction as failed or
// refused it. The sequence number it used may already be consumed.
type RejectedError struct {
	Status     string
	Hash       string
	Diagnostic string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("transaction %s rejected with status %s: %s", e.Hash, e.Status, e.Diagnostic)
}
