package rpc

// Transaction statuses reported by sendTransaction and getTransaction.
const (
	StatusPending       = "PENDING"
	StatusDuplicate     = "DUPLICATE"
	StatusTryAgainLater = "TRY_AGAIN_LATER"
	StatusError         = "ERROR"
	StatusSuccess       = "SUCCESS"
	StatusFailed        = "FAILED"
	StatusNotFound      = "NOT_FOUND"
)

// SimulateTransactionRequest is the params object of simulateTransaction.
type SimulateTransactionRequest struct {
	// XDR encoded TransactionEnvelope
	Transaction string `json:"transaction"`
}

// SimulateTransactionResponse is the raw result of simulateTransaction.
// Decode turns it into a Simulation.
type SimulateTransactionResponse struct {
	Error string `json:"error,omitempty"`
	// XDR encoded SorobanTransactionData
	TransactionData string                       `json:"transactionData,omitempty"`
	MinResourceFee  int64                        `json:"minResourceFee,string,omitempty"`
	Events          []string                     `json:"events,omitempty"` // Diagnostic events
	Results         []SimulateHostFunctionResult `json:"results,omitempty"`
	Cost            *SimulateCost                `json:"cost,omitempty"`
	RestorePreamble *RestorePreamble             `json:"restorePreamble,omitempty"`
	LatestLedger    uint32                       `json:"latestLedger"`
}

type SimulateHostFunctionResult struct {
	Auth []string `json:"auth"` // XDR encoded SorobanAuthorizationEntry
	XDR  string   `json:"xdr"`  // XDR encoded ScVal
}

// SimulateCost is only reported by older servers; newer ones carry the
// instruction count in the transaction data alone.
type SimulateCost struct {
	CPUInstructions uint64 `json:"cpuInsns,string"`
	MemoryBytes     uint64 `json:"memBytes,string"`
}

type RestorePreamble struct {
	TransactionData string `json:"transactionData"`
	MinResourceFee  int64  `json:"minResourceFee,string"`
}

type SendTransactionRequest struct {
	Transaction string `json:"transaction"`
}

type SendTransactionResponse struct {
	Status                string   `json:"status"`
	Hash                  string   `json:"hash"`
	LatestLedger          uint32   `json:"latestLedger"`
	LatestLedgerCloseTime int64    `json:"latestLedgerCloseTime,string"`
	ErrorResultXDR        string   `json:"errorResultXdr,omitempty"` // XDR encoded TransactionResult
	DiagnosticEventsXDR   []string `json:"diagnosticEventsXdr,omitempty"`
}

type GetTransactionRequest struct {
	Hash string `json:"hash"`
}

type GetTransactionResponse struct {
	Status                string   `json:"status"`
	LatestLedger          uint32   `json:"latestLedger"`
	LatestLedgerCloseTime int64    `json:"latestLedgerCloseTime,string"`
	OldestLedger          uint32   `json:"oldestLedger"`
	Ledger                uint32   `json:"ledger,omitempty"`
	ApplicationOrder      int32    `json:"applicationOrder,omitempty"`
	FeeBump               bool     `json:"feeBump,omitempty"`
	EnvelopeXDR           string   `json:"envelopeXdr,omitempty"`
	ResultXDR             string   `json:"resultXdr,omitempty"`     // XDR encoded TransactionResult
	ResultMetaXDR         string   `json:"resultMetaXdr,omitempty"` // XDR encoded TransactionMeta
	DiagnosticEventsXDR   []string `json:"diagnosticEventsXdr,omitempty"`
}

type GetLedgerEntriesRequest struct {
	Keys []string `json:"keys"` // XDR encoded LedgerKey
}

type GetLedgerEntriesResponse struct {
	Entries      []LedgerEntryResult `json:"entries"`
	LatestLedger uint32              `json:"latestLedger"`
}

type LedgerEntryResult struct {
	Key                string  `json:"key"`
	XDR                string  `json:"xdr"` // XDR encoded LedgerEntryData
	LastModifiedLedger uint32  `json:"lastModifiedLedgerSeq"`
	LiveUntilLedgerSeq *uint32 `json:"liveUntilLedgerSeq,omitempty"`
}

type GetLatestLedgerResponse struct {
	ID              string `json:"id"`
	ProtocolVersion uint32 `json:"protocolVersion"`
	Sequence        uint32 `json:"sequence"`
}

type GetNetworkResponse struct {
	FriendbotURL    string `json:"friendbotUrl,omitempty"`
	Passphrase      string `json:"passphrase"`
	ProtocolVersion int    `json:"protocolVersion"`
}

type GetHealthResponse struct {
	Status                string `json:"status"`
	LatestLedger          uint32 `json:"latestLedger"`
	OldestLedger          uint32 `json:"oldestLedger"`
	LedgerRetentionWindow uint32 `json:"ledgerRetentionWindow"`
}

type GetVersionInfoResponse struct {
	Version            string `json:"version"`
	CommitHash         string `json:"commitHash"`
	BuildTimestamp     string `json:"buildTimestamp"`
	CaptiveCoreVersion string `json:"captiveCoreVersion"`
	ProtocolVersion    uint32 `json:"protocolVersion"`
}
