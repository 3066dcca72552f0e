// Package gallery wires the token codec and ownership enumerator to a chain
// provider: it lists an owner's tokens, decodes their metadata and assets,
// and mints new patterns.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"conway-token-lab/internal/assets"
	"conway-token-lab/internal/chain"
	"conway-token-lab/internal/datauri"
	"conway-token-lab/internal/domain"
	"conway-token-lab/internal/idhash"
	"conway-token-lab/internal/metadata"
	"conway-token-lab/internal/mint"
	"conway-token-lab/internal/observability"
	"conway-token-lab/internal/ownership"
	"conway-token-lab/internal/storage"
)

// DefaultConcurrency bounds parallel token decodes in Gallery.
const DefaultConcurrency = 4

// ErrBalanceChanged is returned when the owner's balance moved while its
// tokens were being enumerated.
var ErrBalanceChanged = errors.New("balance changed during enumeration")

// Token is a decoded token with both assets.
type Token struct {
	ID        uint64
	TokenURI  string
	Metadata  *metadata.TokenMetadata
	Image     *assets.DecodedAsset
	Animation *assets.DecodedAsset
}

// Service reads and mints tokens of one contract.
type Service struct {
	reader      chain.TokenReader
	minter      chain.TokenMinter
	contract    string
	enumerator  *ownership.Enumerator
	cache       storage.TokenURIStore
	scans       storage.ScanRecordStore
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMinter enables Mint.
func WithMinter(m chain.TokenMinter) Option {
	return func(s *Service) { s.minter = m }
}

// WithContract sets the contract address used to key cached token-URIs and
// scan records.
func WithContract(addr common.Address) Option {
	return func(s *Service) { s.contract = addr.Hex() }
}

// WithEnumerator replaces the default enumerator.
func WithEnumerator(e *ownership.Enumerator) Option {
	return func(s *Service) {
		if e != nil {
			s.enumerator = e
		}
	}
}

// WithTokenURICache caches token-URIs in store.
func WithTokenURICache(store storage.TokenURIStore) Option {
	return func(s *Service) { s.cache = store }
}

// WithScanRecords persists a record of every Owned scan.
func WithScanRecords(store storage.ScanRecordStore) Option {
	return func(s *Service) { s.scans = store }
}

// WithConcurrency bounds parallel decodes in Gallery.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewService creates a Service reading through reader.
func NewService(reader chain.TokenReader, opts ...Option) *Service {
	s := &Service{
		reader:      reader,
		concurrency: DefaultConcurrency,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.enumerator == nil {
		s.enumerator = ownership.New(s.logger.Named("ownership"))
	}
	return s
}

// Balance returns the number of tokens held by owner.
func (s *Service) Balance(ctx context.Context, owner common.Address) (uint64, error) {
	return s.reader.BalanceOf(ctx, owner)
}

// Owned returns the ids held by owner in ascending order. The balance is read
// before and after the scan; a difference yields ErrBalanceChanged.
func (s *Service) Owned(ctx context.Context, owner common.Address) ([]uint64, error) {
	started := s.now()
	log := s.logger.With(zap.String("owner", owner.Hex()))

	balance, err := s.reader.BalanceOf(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", owner.Hex(), err)
	}

	res, err := s.enumerator.Scan(ctx, owner, balance, s.reader.OwnerOf)
	if err == nil {
		var after uint64
		after, err = s.reader.BalanceOf(ctx, owner)
		if err != nil {
			err = fmt.Errorf("balance of %s: %w", owner.Hex(), err)
		} else if after != balance {
			err = fmt.Errorf("%w: %d before scan, %d after", ErrBalanceChanged, balance, after)
		}
	}

	s.recordScan(ctx, owner, balance, res, err, started)
	if err != nil {
		log.Warn("ownership scan failed", zap.Uint64("balance", balance), zap.Error(err))
		return nil, err
	}

	log.Info("ownership scan complete",
		zap.Uint64("balance", balance),
		zap.Uint64("probed", res.Probed))
	return res.TokenIDs, nil
}

func (s *Service) recordScan(ctx context.Context, owner common.Address, balance uint64, res *ownership.Result, scanErr error, started time.Time) {
	finished := s.now()
	status := scanStatus(scanErr)

	matched := 0
	if scanErr == nil && res != nil {
		matched = len(res.TokenIDs)
	}
	observability.RecordScan(string(status), finished.Sub(started).Seconds(), matched, finished.Unix())

	if s.scans == nil {
		return
	}

	rec := &domain.ScanRecord{
		RunID:      uuid.NewString(),
		Contract:   s.contract,
		Owner:      owner.Hex(),
		Balance:    balance,
		Status:     status,
		StartedAt:  started.UnixMilli(),
		DurationMs: finished.Sub(started).Milliseconds(),
	}
	if res != nil {
		rec.Probed = res.Probed
		rec.Missing = res.Missing
		rec.HighestProbed = res.HighestProbed
		if scanErr == nil {
			rec.TokenIDs = res.TokenIDs
		}
	}
	if scanErr != nil {
		rec.Error = scanErr.Error()
	}

	// A canceled scan is still worth recording.
	if err := s.scans.Insert(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("failed to store scan record",
			zap.String("run_id", rec.RunID),
			zap.Error(err))
	}
}

func scanStatus(err error) domain.ScanStatus {
	switch {
	case err == nil:
		return domain.ScanComplete
	case errors.Is(err, ErrBalanceChanged):
		return domain.ScanBalanceChanged
	case errors.Is(err, ownership.ErrEnumerationIncomplete):
		return domain.ScanIncomplete
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.ScanCanceled
	default:
		return domain.ScanFailed
	}
}

// TokenURI returns the raw token-URI of id, from the cache when one is set.
func (s *Service) TokenURI(ctx context.Context, id uint64) (string, error) {
	if s.cache != nil {
		rec, err := s.cache.Get(ctx, s.contract, id)
		switch {
		case err == nil:
			observability.RecordCacheLookup(true)
			return rec.TokenURI, nil
		case errors.Is(err, storage.ErrNotFound):
			observability.RecordCacheLookup(false)
		default:
			observability.RecordCacheLookup(false)
			s.logger.Warn("token-URI cache lookup failed", zap.Uint64("token_id", id), zap.Error(err))
		}
	}

	uri, err := s.reader.TokenURI(ctx, id)
	if err != nil {
		return "", fmt.Errorf("token %d: %w", id, err)
	}

	if s.cache != nil {
		s.store(ctx, id, uri)
	}
	return uri, nil
}

func (s *Service) store(ctx context.Context, id uint64, uri string) {
	now := s.now().UnixMilli()
	rec := &domain.TokenRecord{
		Contract:    s.contract,
		TokenID:     id,
		TokenURI:    uri,
		Fingerprint: idhash.ComputeTokenFingerprint(s.contract, id, uri),
		FetchedAt:   now,
		CreatedAt:   now,
	}
	err := s.cache.Insert(ctx, rec)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		s.logger.Warn("failed to cache token-URI", zap.Uint64("token_id", id), zap.Error(err))
	}
}

// Token fetches and fully decodes token id.
func (s *Service) Token(ctx context.Context, id uint64) (*Token, error) {
	uri, err := s.TokenURI(ctx, id)
	if err != nil {
		return nil, err
	}
	tok, err := DecodeToken(id, uri)
	if err != nil {
		observability.RecordDecodeFailure(failureKind(err))
		return nil, err
	}
	observability.RecordTokenDecoded()
	return tok, nil
}

// DecodeToken decodes a token-URI read out of band.
func DecodeToken(id uint64, uri string) (*Token, error) {
	meta, err := metadata.Decode(uri)
	if err != nil {
		return nil, fmt.Errorf("token %d: %w", id, err)
	}
	image, animation, err := assets.ExtractAll(meta)
	if err != nil {
		return nil, fmt.Errorf("token %d: %w", id, err)
	}
	return &Token{
		ID:        id,
		TokenURI:  uri,
		Metadata:  meta,
		Image:     image,
		Animation: animation,
	}, nil
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, datauri.ErrMalformedDataURI):
		return "malformed_data_uri"
	case errors.Is(err, datauri.ErrInvalidBase64):
		return "invalid_base64"
	case errors.Is(err, metadata.ErrInvalidMetadataJSON):
		return "invalid_json"
	case errors.Is(err, metadata.ErrMissingRequiredField):
		return "missing_field"
	default:
		return "other"
	}
}

// Gallery returns every token held by owner, decoded, in id order.
func (s *Service) Gallery(ctx context.Context, owner common.Address) ([]*Token, error) {
	ids, err := s.Owned(ctx, owner)
	if err != nil {
		return nil, err
	}

	tokens := make([]*Token, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			tok, err := s.Token(gctx, id)
			if err != nil {
				return err
			}
			tokens[i] = tok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// Mint validates the pattern and mints it to to.
func (s *Service) Mint(ctx context.Context, to common.Address, lineLength int64, cells []int) (*chain.MintReceipt, error) {
	args, err := mint.Encode(lineLength, cells)
	if err != nil {
		return nil, err
	}
	if s.minter == nil {
		return nil, chain.ErrNoSigner
	}

	receipt, err := s.minter.SafeMint(ctx, to, args)
	if err != nil {
		return nil, fmt.Errorf("mint %s: %w", args, err)
	}
	s.logger.Info("minted",
		zap.String("to", to.Hex()),
		zap.String("tx", receipt.TxHash.Hex()),
		zap.Uint64s("token_ids", receipt.TokenIDs))
	return receipt, nil
}
