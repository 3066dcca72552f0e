package storage

import (
	"context"

	"conway-token-lab/internal/domain"
)

// TokenURIStore provides access to token_uris storage.
type TokenURIStore interface {
	// Insert adds a new record. Returns ErrDuplicateKey if (contract, token_id)
	// or the fingerprint exists.
	Insert(ctx context.Context, r *domain.TokenRecord) error

	// Get retrieves the record of one token. Returns ErrNotFound if not exists.
	Get(ctx context.Context, contract string, tokenID uint64) (*domain.TokenRecord, error)

	// GetByFingerprint retrieves a record by fingerprint. Returns ErrNotFound if not exists.
	GetByFingerprint(ctx context.Context, fingerprint string) (*domain.TokenRecord, error)
}

// ScanRecordStore provides access to scan_records storage.
type ScanRecordStore interface {
	// Insert adds a new scan record. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.ScanRecord) error

	// GetByOwner retrieves all scans of an owner on a contract, ordered by started_at ASC.
	GetByOwner(ctx context.Context, contract, owner string) ([]*domain.ScanRecord, error)
}
