package clickhouse

import (
	"context"
	"fmt"
	"time"

	"conway-token-lab/internal/domain"
	"conway-token-lab/internal/storage"
)

// ScanRecordStore implements storage.ScanRecordStore using ClickHouse.
type ScanRecordStore struct {
	conn *Conn
}

// NewScanRecordStore creates a new ScanRecordStore.
func NewScanRecordStore(conn *Conn) *ScanRecordStore {
	return &ScanRecordStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScanRecordStore = (*ScanRecordStore)(nil)

// Insert adds a new scan record. Returns ErrDuplicateKey if run_id exists.
func (s *ScanRecordStore) Insert(ctx context.Context, r *domain.ScanRecord) (err error) {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() { observe("insert_scan_record", start, err) }()

	// MergeTree does not enforce uniqueness; keep append-only semantics explicitly
	exists, err := s.exists(ctx, r.RunID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	tokenIDs := r.TokenIDs
	if tokenIDs == nil {
		tokenIDs = []uint64{}
	}

	query := `
		INSERT INTO scan_records (
			run_id, contract, owner,
			balance, probed, missing, highest_probed, token_ids,
			status, error, started_at, duration_ms
		) VALUES (
			?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?
		)
	`

	err = s.conn.Exec(ctx, query,
		r.RunID, r.Contract, r.Owner,
		r.Balance, r.Probed, r.Missing, r.HighestProbed, tokenIDs,
		string(r.Status), r.Error, r.StartedAt, r.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	return nil
}

// GetByOwner retrieves all scans of an owner on a contract, ordered by started_at ASC.
func (s *ScanRecordStore) GetByOwner(ctx context.Context, contract, owner string) (_ []*domain.ScanRecord, err error) {
	start := time.Now()
	defer func() { observe("get_scan_records", start, err) }()

	query := `
		SELECT
			run_id, contract, owner,
			balance, probed, missing, highest_probed, token_ids,
			status, error, started_at, duration_ms
		FROM scan_records
		WHERE contract = ? AND owner = ?
		ORDER BY started_at ASC, run_id ASC
	`

	rows, err := s.conn.Query(ctx, query, contract, owner)
	if err != nil {
		return nil, fmt.Errorf("query by owner: %w", err)
	}
	defer rows.Close()

	return scanScanRecords(rows)
}

// exists checks if a scan with the given run id exists.
func (s *ScanRecordStore) exists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM scan_records WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanScanRecords scans multiple rows into a slice.
func scanScanRecords(rows chRows) ([]*domain.ScanRecord, error) {
	var records []*domain.ScanRecord

	for rows.Next() {
		var r domain.ScanRecord
		var status string
		err := rows.Scan(
			&r.RunID, &r.Contract, &r.Owner,
			&r.Balance, &r.Probed, &r.Missing, &r.HighestProbed, &r.TokenIDs,
			&status, &r.Error, &r.StartedAt, &r.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		r.Status = domain.ScanStatus(status)
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan record rows: %w", err)
	}

	return records, nil
}
