package storage

import "errors"

// Sentinels shared by every store. Records are written once and never
// updated.
var (
	// ErrNotFound means no record exists for the key.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey means a record with the same key was already written.
	ErrDuplicateKey = errors.New("duplicate key: records are write-once")

	// ErrInvalidInput means the record or key failed validation.
	ErrInvalidInput = errors.New("invalid store input")
)
