package gallery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conway-token-lab/internal/chain"
	"conway-token-lab/internal/chain/stub"
	"conway-token-lab/internal/datauri"
	"conway-token-lab/internal/domain"
	"conway-token-lab/internal/idhash"
	"conway-token-lab/internal/metadata"
	"conway-token-lab/internal/mint"
	"conway-token-lab/internal/ownership"
	"conway-token-lab/internal/storage/memory"
)

var (
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	contract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
)

func mintTo(t *testing.T, c *stub.Contract, owner common.Address, id uint64, cells ...int) {
	t.Helper()
	args, err := mint.Encode(8, cells)
	require.NoError(t, err)
	uri, err := stub.TokenURIFor(args)
	require.NoError(t, err)
	c.Mint(owner, id, uri)
}

func seeded(t *testing.T) *stub.Contract {
	t.Helper()
	c := stub.NewContract()
	mintTo(t, c, bob, 0, 1, 2, 3)
	mintTo(t, c, alice, 1, 4, 5, 6)
	mintTo(t, c, bob, 2, 7, 8, 9)
	mintTo(t, c, alice, 4, 10, 11, 12)
	return c
}

// shifting transfers a token to alice after a number of ownerOf calls.
type shifting struct {
	*stub.Contract
	after int64
	calls atomic.Int64
	token uint64
}

func (s *shifting) OwnerOf(ctx context.Context, id uint64) (common.Address, error) {
	if s.calls.Add(1) == s.after {
		s.Transfer(s.token, alice)
	}
	return s.Contract.OwnerOf(ctx, id)
}

func TestOwned(t *testing.T) {
	scans := memory.NewScanRecordStore()
	svc := NewService(seeded(t), WithContract(contract), WithScanRecords(scans))

	ids, err := svc.Owned(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 4}, ids)

	recs, err := scans.GetByOwner(context.Background(), contract.Hex(), alice.Hex())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ScanComplete, recs[0].Status)
	assert.Equal(t, []uint64{1, 4}, recs[0].TokenIDs)
	assert.Equal(t, uint64(2), recs[0].Balance)
	assert.Equal(t, uint64(5), recs[0].Probed)
	assert.Equal(t, uint64(1), recs[0].Missing)
	assert.NotEmpty(t, recs[0].RunID)
}

func TestOwned_NoTokens(t *testing.T) {
	svc := NewService(seeded(t))

	ids, err := svc.Owned(context.Background(), common.HexToAddress("0xdead"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestOwned_BalanceChanged(t *testing.T) {
	scans := memory.NewScanRecordStore()
	reader := &shifting{Contract: seeded(t), after: 2, token: 2}
	svc := NewService(reader, WithContract(contract), WithScanRecords(scans))

	ids, err := svc.Owned(context.Background(), alice)
	require.ErrorIs(t, err, ErrBalanceChanged)
	assert.Nil(t, ids)

	recs, err := scans.GetByOwner(context.Background(), contract.Hex(), alice.Hex())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ScanBalanceChanged, recs[0].Status)
	assert.Empty(t, recs[0].TokenIDs)
	assert.Contains(t, recs[0].Error, "balance changed")
}

func TestOwned_Incomplete(t *testing.T) {
	scans := memory.NewScanRecordStore()
	svc := NewService(seeded(t),
		WithContract(contract),
		WithScanRecords(scans),
		WithEnumerator(&ownership.Enumerator{MaxProbes: 3}))

	_, err := svc.Owned(context.Background(), alice)
	require.ErrorIs(t, err, ownership.ErrEnumerationIncomplete)

	recs, err := scans.GetByOwner(context.Background(), contract.Hex(), alice.Hex())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ScanIncomplete, recs[0].Status)
	assert.Equal(t, uint64(3), recs[0].Probed)
}

func TestOwned_ProviderError(t *testing.T) {
	c := seeded(t)
	c.Err = errors.New("node unavailable")

	_, err := NewService(c).Owned(context.Background(), alice)
	require.Error(t, err)
	assert.True(t, chain.IsProviderError(err))
}

func TestToken(t *testing.T) {
	svc := NewService(seeded(t))

	tok, err := svc.Token(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), tok.ID)
	assert.Equal(t, "image/svg+xml", tok.Image.MIME)
	assert.Equal(t, "text/html", tok.Animation.MIME)
	assert.Contains(t, tok.Animation.Text(), "data-cells=\"[10 11 12]\"")
}

func TestToken_Nonexistent(t *testing.T) {
	_, err := NewService(seeded(t)).Token(context.Background(), 3)
	assert.ErrorIs(t, err, chain.ErrNonexistentToken)
}

func TestToken_DecodeFailures(t *testing.T) {
	c := stub.NewContract()
	c.Mint(alice, 0, "not a data uri")
	c.Mint(alice, 1, datauri.Encode("application/json", []byte(`{"image":"data:image/svg+xml;base64,PHN2Zz4="}`)))
	c.Mint(alice, 2, datauri.Encode("application/json", []byte(`{"image":"data:image/svg+xml;base64,XXX","animation_url":"data:text/html;base64,YYY"}`)))
	svc := NewService(c)

	_, err := svc.Token(context.Background(), 0)
	assert.ErrorIs(t, err, datauri.ErrMalformedDataURI)

	_, err = svc.Token(context.Background(), 1)
	assert.ErrorIs(t, err, metadata.ErrMissingRequiredField)

	_, err = svc.Token(context.Background(), 2)
	assert.ErrorIs(t, err, datauri.ErrInvalidBase64)
}

func TestTokenURI_Cache(t *testing.T) {
	c := seeded(t)
	cache := memory.NewTokenURIStore()
	svc := NewService(c, WithContract(contract), WithTokenURICache(cache))
	ctx := context.Background()

	first, err := svc.TokenURI(ctx, 1)
	require.NoError(t, err)

	rec, err := cache.Get(ctx, contract.Hex(), 1)
	require.NoError(t, err)
	assert.Equal(t, first, rec.TokenURI)
	assert.Equal(t, idhash.ComputeTokenFingerprint(contract.Hex(), 1, first), rec.Fingerprint)

	// served from the cache even when the provider is down
	c.Err = errors.New("node unavailable")
	second, err := svc.TokenURI(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGallery(t *testing.T) {
	svc := NewService(seeded(t), WithConcurrency(2))

	tokens, err := svc.Gallery(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, uint64(1), tokens[0].ID)
	assert.Equal(t, uint64(4), tokens[1].ID)
}

func TestGallery_DecodeFailureFails(t *testing.T) {
	c := seeded(t)
	c.Mint(alice, 5, "data:application/json;base64,e30=")

	_, err := NewService(c).Gallery(context.Background(), alice)
	assert.ErrorIs(t, err, metadata.ErrMissingRequiredField)
}

func TestMint(t *testing.T) {
	c := stub.NewContract()
	svc := NewService(c, WithMinter(c))

	receipt, err := svc.Mint(context.Background(), bob, 5, []int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, receipt.TokenIDs)

	owner, err := c.OwnerOf(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)
}

func TestMint_InvalidPattern(t *testing.T) {
	c := stub.NewContract()
	svc := NewService(c, WithMinter(c))

	_, err := svc.Mint(context.Background(), bob, 5, []int{1, 256, 3})
	require.ErrorIs(t, err, mint.ErrInvalidPatternArgument)
	assert.Empty(t, c.TokenIDs())

	_, err = svc.Mint(context.Background(), bob, -1, []int{1, 2, 3})
	assert.ErrorIs(t, err, mint.ErrInvalidPatternArgument)
}

func TestMint_NoMinter(t *testing.T) {
	_, err := NewService(stub.NewContract()).Mint(context.Background(), bob, 5, []int{1, 2, 3})
	assert.ErrorIs(t, err, chain.ErrNoSigner)
}
