package domain

// ScanStatus is the outcome of an ownership scan.
type ScanStatus string

const (
	ScanComplete       ScanStatus = "complete"
	ScanIncomplete     ScanStatus = "incomplete"
	ScanBalanceChanged ScanStatus = "balance_changed"
	ScanFailed         ScanStatus = "failed"
	ScanCanceled       ScanStatus = "canceled"
)

// ScanRecord describes one ownership scan run.
// Corresponds to scan_records table in ClickHouse.
type ScanRecord struct {
	RunID         string     // uuid of the run
	Contract      string     // contract address
	Owner         string     // scanned owner address
	Balance       uint64     // balanceOf at scan start
	Probed        uint64     // ownerOf calls issued
	Missing       uint64     // probed ids that do not exist
	HighestProbed uint64     // largest id probed
	TokenIDs      []uint64   // ids found, ascending; empty unless complete
	Status        ScanStatus // outcome
	Error         string     // failure message, empty on success
	StartedAt     int64      // scan start (ms)
	DurationMs    int64      // wall time (ms)
}
