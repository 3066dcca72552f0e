package postgres

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"conway-token-lab/internal/domain"
	"conway-token-lab/internal/storage"
)

// TokenURIStore implements storage.TokenURIStore using PostgreSQL.
type TokenURIStore struct {
	pool *Pool
}

// NewTokenURIStore creates a new TokenURIStore.
func NewTokenURIStore(pool *Pool) *TokenURIStore {
	return &TokenURIStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenURIStore = (*TokenURIStore)(nil)

// Insert adds a new record. Returns ErrDuplicateKey if (contract, token_id)
// or fingerprint exists.
func (s *TokenURIStore) Insert(ctx context.Context, r *domain.TokenRecord) (err error) {
	if r == nil || r.Contract == "" || r.Fingerprint == "" || r.TokenID > math.MaxInt64 {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() { observe("insert_token_uri", start, err) }()

	query := `
		INSERT INTO token_uris (
			contract, token_id, token_uri, fingerprint, fetched_at
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.pool.Exec(ctx, query,
		r.Contract,
		int64(r.TokenID),
		r.TokenURI,
		r.Fingerprint,
		r.FetchedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token uri: %w", err)
	}
	return nil
}

// Get retrieves the record of one token. Returns ErrNotFound if not exists.
func (s *TokenURIStore) Get(ctx context.Context, contract string, tokenID uint64) (_ *domain.TokenRecord, err error) {
	if tokenID > math.MaxInt64 {
		return nil, storage.ErrNotFound
	}

	start := time.Now()
	defer func() { observe("get_token_uri", start, err) }()

	query := `
		SELECT contract, token_id, token_uri, fingerprint, fetched_at, created_at
		FROM token_uris
		WHERE contract = $1 AND token_id = $2
	`

	r, err := scanTokenRecord(s.pool.QueryRow(ctx, query, contract, int64(tokenID)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token uri: %w", err)
	}
	return r, nil
}

// GetByFingerprint retrieves a record by fingerprint. Returns ErrNotFound if not exists.
func (s *TokenURIStore) GetByFingerprint(ctx context.Context, fingerprint string) (_ *domain.TokenRecord, err error) {
	start := time.Now()
	defer func() { observe("get_token_uri_by_fingerprint", start, err) }()

	query := `
		SELECT contract, token_id, token_uri, fingerprint, fetched_at, created_at
		FROM token_uris
		WHERE fingerprint = $1
	`

	r, err := scanTokenRecord(s.pool.QueryRow(ctx, query, fingerprint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token uri by fingerprint: %w", err)
	}
	return r, nil
}

// scanTokenRecord scans a single row into TokenRecord.
func scanTokenRecord(row pgx.Row) (*domain.TokenRecord, error) {
	var r domain.TokenRecord
	var tokenID int64

	err := row.Scan(
		&r.Contract,
		&tokenID,
		&r.TokenURI,
		&r.Fingerprint,
		&r.FetchedAt,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.TokenID = uint64(tokenID)
	return &r, nil
}
