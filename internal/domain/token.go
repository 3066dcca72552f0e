package domain

// TokenRecord is a cached token-URI of one token.
// Corresponds to token_uris table in PostgreSQL.
type TokenRecord struct {
	Contract    string // contract address, 0x-prefixed checksum form
	TokenID     uint64 // token id
	TokenURI    string // raw data URI returned by tokenURI
	Fingerprint string // base58 content fingerprint, unique
	FetchedAt   int64  // when the URI was read from chain (ms)
	CreatedAt   int64  // record creation timestamp (ms)
}
