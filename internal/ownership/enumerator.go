// Package ownership discovers which token ids an owner holds on a contract
// that has no enumeration API, by probing ownerOf over ascending ids.
package ownership

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"conway-token-lab/internal/chain"
	"conway-token-lab/internal/observability"
)

// Enumerator defaults.
const (
	DefaultMaxProbes = 10000
	DefaultWindow    = 1
)

// ErrEnumerationIncomplete is returned when the probe bound is reached before
// balance matches were found.
var ErrEnumerationIncomplete = errors.New("enumeration incomplete")

// OwnerOf resolves the owner of a token id. It returns an error wrapping
// chain.ErrNonexistentToken for ids that do not exist.
type OwnerOf func(ctx context.Context, tokenID uint64) (common.Address, error)

// Enumerator scans token ids 0, 1, 2, ... until it has found balance ids
// owned by the target or has issued MaxProbes probes.
type Enumerator struct {
	// MaxProbes bounds the number of ownerOf calls per scan.
	MaxProbes uint64
	// Window is the number of ids probed concurrently.
	Window int
	Logger *zap.Logger
}

// New returns an Enumerator with default bounds.
func New(logger *zap.Logger) *Enumerator {
	return &Enumerator{
		MaxProbes: DefaultMaxProbes,
		Window:    DefaultWindow,
		Logger:    logger,
	}
}

// Result is the outcome of one scan.
type Result struct {
	// TokenIDs are the matched ids, ascending.
	TokenIDs []uint64
	Balance  uint64
	// Probed is the number of ownerOf calls issued.
	Probed uint64
	// Missing is the number of probed ids that do not exist.
	Missing uint64
	// HighestProbed is the largest id probed. Zero when Probed is zero.
	HighestProbed uint64
}

func (e *Enumerator) maxProbes() uint64 {
	if e == nil || e.MaxProbes == 0 {
		return DefaultMaxProbes
	}
	return e.MaxProbes
}

func (e *Enumerator) window() int {
	if e == nil || e.Window < 1 {
		return DefaultWindow
	}
	return e.Window
}

func (e *Enumerator) logger() *zap.Logger {
	if e == nil || e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Matches yields the ids owned by owner in ascending order. The sequence ends
// after balance ids, or with a single non-nil error: ErrEnumerationIncomplete
// when the probe bound is exhausted, the context error on cancellation, or
// the first ownerOf failure other than a nonexistent token.
func (e *Enumerator) Matches(ctx context.Context, owner common.Address, balance uint64, ownerOf OwnerOf) iter.Seq2[uint64, error] {
	return func(yield func(uint64, error) bool) {
		var res Result
		stopped := false
		err := e.walk(ctx, owner, balance, ownerOf, &res, func(id uint64) bool {
			if !yield(id, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(0, err)
		}
	}
}

// Scan enumerates owner's tokens and reports probe statistics. On failure the
// statistics are still returned but TokenIDs is nil.
func (e *Enumerator) Scan(ctx context.Context, owner common.Address, balance uint64, ownerOf OwnerOf) (*Result, error) {
	res := &Result{Balance: balance, TokenIDs: make([]uint64, 0, min(balance, e.maxProbes()))}
	err := e.walk(ctx, owner, balance, ownerOf, res, func(id uint64) bool {
		res.TokenIDs = append(res.TokenIDs, id)
		return true
	})
	if err != nil {
		res.TokenIDs = nil
		return res, err
	}
	return res, nil
}

// Discover returns the ids owned by owner, ascending, with exactly balance entries.
func (e *Enumerator) Discover(ctx context.Context, owner common.Address, balance uint64, ownerOf OwnerOf) ([]uint64, error) {
	res, err := e.Scan(ctx, owner, balance, ownerOf)
	if err != nil {
		return nil, err
	}
	return res.TokenIDs, nil
}

type probeResult struct {
	owner common.Address
	err   error
}

// walk probes ids in batches of Window and feeds matches to emit in id order.
// emit returning false ends the walk without error.
func (e *Enumerator) walk(ctx context.Context, owner common.Address, balance uint64, ownerOf OwnerOf, res *Result, emit func(uint64) bool) error {
	if balance == 0 {
		return nil
	}

	limit := e.maxProbes()
	window := uint64(e.window())
	log := e.logger().With(zap.String("owner", owner.Hex()), zap.Uint64("balance", balance))

	var found uint64
	for next := uint64(0); next < limit; {
		if err := ctx.Err(); err != nil {
			return err
		}

		size := min(window, limit-next)
		results := make([]probeResult, size)

		g, gctx := errgroup.WithContext(ctx)
		for i := uint64(0); i < size; i++ {
			id := next + i
			g.Go(func() error {
				o, err := ownerOf(gctx, id)
				results[i] = probeResult{owner: o, err: err}
				return nil
			})
		}
		_ = g.Wait()

		res.Probed += size
		res.HighestProbed = next + size - 1

		for i, r := range results {
			id := next + uint64(i)
			switch {
			case errors.Is(r.err, chain.ErrNonexistentToken):
				res.Missing++
				observability.RecordProbe("missing")
				continue
			case r.err != nil:
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("ownerOf probe failed", zap.Uint64("token_id", id), zap.Error(r.err))
				return fmt.Errorf("probe token %d: %w", id, r.err)
			case r.owner != owner:
				observability.RecordProbe("miss")
				continue
			}

			observability.RecordProbe("match")
			found++
			if !emit(id) {
				return nil
			}
			if found == balance {
				log.Debug("enumeration complete",
					zap.Uint64("probed", res.Probed),
					zap.Uint64("missing", res.Missing))
				return nil
			}
		}

		next += size
	}

	log.Warn("probe bound exhausted",
		zap.Uint64("max_probes", limit),
		zap.Uint64("found", found))
	return fmt.Errorf("%w: found %d of %d tokens within %d probes", ErrEnumerationIncomplete, found, balance, limit)
}
