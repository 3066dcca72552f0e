package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"conway-token-lab/internal/domain"
	"conway-token-lab/internal/storage"
)

// ScanRecordStore is an in-memory implementation of storage.ScanRecordStore.
type ScanRecordStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ScanRecord // keyed by run_id
}

// NewScanRecordStore creates a new in-memory scan record store.
func NewScanRecordStore() *ScanRecordStore {
	return &ScanRecordStore{
		records: make(map[string]*domain.ScanRecord),
	}
}

// Insert adds a new scan record. Returns ErrDuplicateKey if run_id exists.
func (s *ScanRecordStore) Insert(_ context.Context, r *domain.ScanRecord) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	s.records[r.RunID] = copyScanRecord(r)
	return nil
}

// GetByOwner retrieves all scans of an owner on a contract, ordered by started_at ASC.
func (s *ScanRecordStore) GetByOwner(_ context.Context, contract, owner string) ([]*domain.ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScanRecord
	for _, r := range s.records {
		if r.Contract == contract && r.Owner == owner {
			result = append(result, copyScanRecord(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt != result[j].StartedAt {
			return result[i].StartedAt < result[j].StartedAt
		}
		return result[i].RunID < result[j].RunID
	})
	return result, nil
}

func copyScanRecord(r *domain.ScanRecord) *domain.ScanRecord {
	c := *r
	c.TokenIDs = slices.Clone(r.TokenIDs)
	return &c
}

var _ storage.ScanRecordStore = (*ScanRecordStore)(nil)
