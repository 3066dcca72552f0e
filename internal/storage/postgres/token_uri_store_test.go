package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conway-token-lab/internal/domain"
	"conway-token-lab/internal/storage"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestTokenURIStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenURIStore(pool)

	rec := &domain.TokenRecord{
		Contract:    testContract,
		TokenID:     42,
		TokenURI:    "data:application/json;base64,e30=",
		Fingerprint: "3yZe7d",
		FetchedAt:   1700000000000,
	}

	require.NoError(t, store.Insert(ctx, rec))

	retrieved, err := store.Get(ctx, testContract, 42)
	require.NoError(t, err)
	assert.Equal(t, rec.Contract, retrieved.Contract)
	assert.Equal(t, rec.TokenID, retrieved.TokenID)
	assert.Equal(t, rec.TokenURI, retrieved.TokenURI)
	assert.Equal(t, rec.Fingerprint, retrieved.Fingerprint)
	assert.Equal(t, rec.FetchedAt, retrieved.FetchedAt)
	assert.NotZero(t, retrieved.CreatedAt)

	byFP, err := store.GetByFingerprint(ctx, "3yZe7d")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), byFP.TokenID)
}

func TestTokenURIStore_InsertDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenURIStore(pool)

	rec := &domain.TokenRecord{Contract: testContract, TokenID: 1, Fingerprint: "fp-1", FetchedAt: 1}
	require.NoError(t, store.Insert(ctx, rec))

	err := store.Insert(ctx, rec)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Same fingerprint on a different token
	err = store.Insert(ctx, &domain.TokenRecord{Contract: testContract, TokenID: 2, Fingerprint: "fp-1", FetchedAt: 1})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTokenURIStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenURIStore(pool)

	_, err := store.Get(ctx, testContract, 404)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetByFingerprint(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenURIStore_InvalidInput(t *testing.T) {
	store := NewTokenURIStore(nil)

	err := store.Insert(context.Background(), &domain.TokenRecord{Contract: testContract})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.Insert(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
