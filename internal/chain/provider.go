// Package chain talks to the AnimatedSVGToken contract over Ethereum JSON-RPC.
//
// Callers depend on the TokenReader and TokenMinter interfaces; HTTPClient,
// Contract and WSClient are the production implementations and
// chain/stub provides an in-memory one.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"conway-token-lab/internal/mint"
)

var (
	// ErrNonexistentToken is returned by OwnerOf and TokenURI for ids that
	// were never minted (or were burned).
	ErrNonexistentToken = errors.New("nonexistent token")

	// ErrMintReverted is returned when a mint transaction is mined with a
	// failed status.
	ErrMintReverted = errors.New("mint transaction reverted")

	// ErrNoSigner is returned when a write is attempted on a read-only contract.
	ErrNoSigner = errors.New("no signer configured")
)

// TokenReader is the read side of the token contract.
type TokenReader interface {
	// BalanceOf returns the number of tokens held by owner.
	BalanceOf(ctx context.Context, owner common.Address) (uint64, error)

	// OwnerOf returns the owner of tokenID. Returns ErrNonexistentToken for
	// unminted ids.
	OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error)

	// TokenURI returns the data URI describing tokenID.
	TokenURI(ctx context.Context, tokenID uint64) (string, error)
}

// TokenMinter is the write side of the token contract.
type TokenMinter interface {
	// SafeMint mints a token for to and blocks until the transaction is final.
	SafeMint(ctx context.Context, to common.Address, args mint.Args) (*MintReceipt, error)
}

// Provider is a full contract client.
type Provider interface {
	TokenReader
	TokenMinter
}

// MintReceipt describes a finalized mint transaction.
type MintReceipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	// TokenIDs are the ids minted to the recipient, taken from Transfer logs.
	TokenIDs []uint64
}

// ProviderError wraps any failure of the external chain provider.
// HTTPClient retries transient transport failures before returning one;
// callers above the transport propagate it unchanged and never retry.
type ProviderError struct {
	Method string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Method, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err came from the chain provider.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
