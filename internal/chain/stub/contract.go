// Package stub provides an in-memory token contract for tests and offline use.
package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"conway-token-lab/internal/chain"
	"conway-token-lab/internal/datauri"
	"conway-token-lab/internal/metadata"
	"conway-token-lab/internal/mint"
)

// Contract implements chain.Provider in memory. Token ids start at 0 and
// increase with every mint, like the deployed contract's counter.
type Contract struct {
	mu     sync.RWMutex
	owners map[uint64]common.Address
	uris   map[uint64]string
	next   uint64
	block  uint64

	// Err, when set, is returned by every call as a provider failure.
	Err error

	// Calls counts OwnerOf invocations.
	Calls int
}

// NewContract creates an empty stub contract.
func NewContract() *Contract {
	return &Contract{
		owners: make(map[uint64]common.Address),
		uris:   make(map[uint64]string),
	}
}

func (c *Contract) fail(method string) error {
	if c.Err == nil {
		return nil
	}
	return &chain.ProviderError{Method: method, Err: c.Err}
}

// BalanceOf counts tokens held by owner.
func (c *Contract) BalanceOf(_ context.Context, owner common.Address) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.fail("balanceOf"); err != nil {
		return 0, err
	}
	var n uint64
	for _, o := range c.owners {
		if o == owner {
			n++
		}
	}
	return n, nil
}

// OwnerOf returns the owner of tokenID or chain.ErrNonexistentToken.
func (c *Contract) OwnerOf(_ context.Context, tokenID uint64) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls++
	if err := c.fail("ownerOf"); err != nil {
		return common.Address{}, err
	}
	owner, ok := c.owners[tokenID]
	if !ok {
		return common.Address{}, fmt.Errorf("ownerOf %d: %w", tokenID, chain.ErrNonexistentToken)
	}
	return owner, nil
}

// TokenURI returns the stored token-URI or chain.ErrNonexistentToken.
func (c *Contract) TokenURI(_ context.Context, tokenID uint64) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.fail("tokenURI"); err != nil {
		return "", err
	}
	uri, ok := c.uris[tokenID]
	if !ok {
		return "", fmt.Errorf("tokenURI %d: %w", tokenID, chain.ErrNonexistentToken)
	}
	return uri, nil
}

// SafeMint mints the next id to to with rendered metadata.
func (c *Contract) SafeMint(_ context.Context, to common.Address, args mint.Args) (*chain.MintReceipt, error) {
	uri, err := TokenURIFor(args)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.fail("eth_sendRawTransaction"); err != nil {
		return nil, err
	}

	id := c.next
	c.next++
	c.block++
	c.owners[id] = to
	c.uris[id] = uri

	return &chain.MintReceipt{
		TxHash:      crypto.Keccak256Hash([]byte(fmt.Sprintf("mint-%d", id))),
		BlockNumber: c.block,
		TokenIDs:    []uint64{id},
	}, nil
}

// Mint assigns tokenID to owner with the given token-URI.
func (c *Contract) Mint(owner common.Address, tokenID uint64, tokenURI string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.owners[tokenID] = owner
	c.uris[tokenID] = tokenURI
	if tokenID >= c.next {
		c.next = tokenID + 1
	}
}

// Transfer moves tokenID to a new owner.
func (c *Contract) Transfer(tokenID uint64, to common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.owners[tokenID]; ok {
		c.owners[tokenID] = to
	}
}

// Burn removes tokenID.
func (c *Contract) Burn(tokenID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.owners, tokenID)
	delete(c.uris, tokenID)
}

// TokenIDs returns all minted ids in ascending order.
func (c *Contract) TokenIDs() []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]uint64, 0, len(c.owners))
	for id := range c.owners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// TokenURIFor renders the token-URI the stub stores for a mint.
func TokenURIFor(args mint.Args) (string, error) {
	name, _ := json.Marshal(fmt.Sprintf("Conway %s", args))
	meta := &metadata.TokenMetadata{
		Image:        datauri.Encode("image/svg+xml", []byte(renderSVG(args))),
		AnimationURL: datauri.Encode("text/html", []byte(renderHTML(args))),
		Extra: map[string]json.RawMessage{
			"name": name,
		},
	}
	return metadata.Encode(meta)
}

// renderSVG draws the three packed cell bytes as rows of eight squares.
func renderSVG(args mint.Args) string {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 8 3">`)
	for row, cell := range args.Cells {
		for bit := 0; bit < 8; bit++ {
			if cell&(1<<(7-bit)) != 0 {
				fmt.Fprintf(&b, `<rect x="%d" y="%d" width="1" height="1"/>`, bit, row)
			}
		}
	}
	b.WriteString(`</svg>`)
	return b.String()
}

func renderHTML(args mint.Args) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><body data-line-length="%d" data-cells="%v"></body></html>`,
		args.LineLength, args.CellValues())
}

var _ chain.Provider = (*Contract)(nil)
