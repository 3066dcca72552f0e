package chain

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"conway-token-lab/internal/mint"
	"conway-token-lab/internal/observability"
)

// TokenABI is the subset of the AnimatedSVGToken ABI this client uses.
const TokenABI = `[
	{
		"type": "function",
		"name": "balanceOf",
		"stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "ownerOf",
		"stateMutability": "view",
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"outputs": [{"name": "", "type": "address"}]
	},
	{
		"type": "function",
		"name": "tokenURI",
		"stateMutability": "view",
		"inputs": [{"name": "tokenId", "type": "uint256"}],
		"outputs": [{"name": "", "type": "string"}]
	},
	{
		"type": "function",
		"name": "safeMint",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "to", "type": "address"},
			{"name": "lineLength", "type": "uint256"},
			{"name": "bits", "type": "uint8[3]"}
		],
		"outputs": []
	},
	{
		"type": "event",
		"name": "Transfer",
		"anonymous": false,
		"inputs": [
			{"name": "from", "type": "address", "indexed": true},
			{"name": "to", "type": "address", "indexed": true},
			{"name": "tokenId", "type": "uint256", "indexed": true}
		]
	},
	{
		"type": "error",
		"name": "ERC721NonexistentToken",
		"inputs": [{"name": "tokenId", "type": "uint256"}]
	}
]`

// Contract defaults.
const (
	DefaultConfirmations = 1
	DefaultPollInterval  = 2 * time.Second
	gasHeadroomPercent   = 20
)

// TransferTopic is the log topic of Transfer(address,address,uint256).
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

var tokenABI = mustParseABI(TokenABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse token abi: %v", err))
	}
	return parsed
}

// Signer holds the key used to sign mint transactions.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex-encoded secp256k1 private key (with or without 0x).
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the account address of the signer.
func (s *Signer) Address() common.Address {
	return s.address
}

// Contract is a typed binding of the token contract over a Backend.
type Contract struct {
	address       common.Address
	backend       Backend
	signer        *Signer
	confirmations uint64
	pollInterval  time.Duration
	gasLimit      uint64
	logger        *zap.Logger
}

// ContractOption configures Contract.
type ContractOption func(*Contract)

// WithSigner enables SafeMint using signer's key.
func WithSigner(signer *Signer) ContractOption {
	return func(c *Contract) {
		c.signer = signer
	}
}

// WithConfirmations sets how many blocks deep a mint must be before SafeMint returns.
func WithConfirmations(n uint64) ContractOption {
	return func(c *Contract) {
		if n > 0 {
			c.confirmations = n
		}
	}
}

// WithPollInterval sets the receipt polling interval.
func WithPollInterval(d time.Duration) ContractOption {
	return func(c *Contract) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithGasLimit fixes the mint gas limit instead of estimating it.
func WithGasLimit(gas uint64) ContractOption {
	return func(c *Contract) {
		c.gasLimit = gas
	}
}

// WithContractLogger sets the logger.
func WithContractLogger(logger *zap.Logger) ContractOption {
	return func(c *Contract) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewContract binds the token contract deployed at address.
func NewContract(address common.Address, backend Backend, opts ...ContractOption) *Contract {
	c := &Contract{
		address:       address,
		backend:       backend,
		confirmations: DefaultConfirmations,
		pollInterval:  DefaultPollInterval,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns the contract address.
func (c *Contract) Address() common.Address {
	return c.address
}

// BalanceOf returns the number of tokens held by owner.
func (c *Contract) BalanceOf(ctx context.Context, owner common.Address) (uint64, error) {
	out, err := c.read(ctx, "balanceOf", owner)
	if err != nil {
		return 0, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok || !balance.IsUint64() {
		return 0, fmt.Errorf("balanceOf: unexpected result %v", out[0])
	}
	return balance.Uint64(), nil
}

// OwnerOf returns the owner of tokenID, or ErrNonexistentToken.
func (c *Contract) OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error) {
	out, err := c.read(ctx, "ownerOf", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("ownerOf: unexpected result %v", out[0])
	}
	return owner, nil
}

// TokenURI returns the metadata data URI of tokenID, or ErrNonexistentToken.
func (c *Contract) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	out, err := c.read(ctx, "tokenURI", new(big.Int).SetUint64(tokenID))
	if err != nil {
		return "", err
	}
	uri, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("tokenURI: unexpected result %v", out[0])
	}
	return uri, nil
}

func (c *Contract) read(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := tokenABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := c.backend.CallContract(ctx, c.address, data)
	if err != nil {
		if isNonexistentToken(err) {
			return nil, fmt.Errorf("%s: %w", method, ErrNonexistentToken)
		}
		return nil, err
	}

	out, err := tokenABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	return out, nil
}

// SafeMint signs and sends safeMint(to, lineLength, cells), then waits until
// the transaction is the configured number of blocks deep.
func (c *Contract) SafeMint(ctx context.Context, to common.Address, args mint.Args) (*MintReceipt, error) {
	if c.signer == nil {
		return nil, ErrNoSigner
	}

	data, err := tokenABI.Pack("safeMint", append([]any{to}, args.ABIValues()...)...)
	if err != nil {
		return nil, fmt.Errorf("pack safeMint: %w", err)
	}

	from := c.signer.Address()

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gas := c.gasLimit
	if gas == 0 {
		estimated, err := c.backend.EstimateGas(ctx, from, c.address, data)
		if err != nil {
			return nil, err
		}
		gas = estimated + estimated*gasHeadroomPercent/100
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &c.address,
		Value:    new(big.Int),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.signer.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	hash, err := c.backend.SendTransaction(ctx, signed)
	if err != nil {
		observability.RecordMint("send_failed")
		return nil, err
	}

	c.logger.Info("mint transaction sent",
		zap.String("tx", hash.Hex()),
		zap.String("to", to.Hex()),
		zap.Stringer("args", args),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas))

	receipt, err := c.waitFinal(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		observability.RecordMint("reverted")
		return nil, fmt.Errorf("%w: tx %s", ErrMintReverted, hash.Hex())
	}

	result := &MintReceipt{
		TxHash:      hash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		TokenIDs:    c.mintedTokenIDs(receipt.Logs, to),
	}
	observability.RecordMint("success")
	observability.UpdateLastMintBlock(result.BlockNumber)
	c.logger.Info("mint finalized",
		zap.String("tx", hash.Hex()),
		zap.Uint64("block", result.BlockNumber),
		zap.Uint64s("token_ids", result.TokenIDs))
	return result, nil
}

// waitFinal polls for the receipt and then for enough confirmations.
func (c *Contract) waitFinal(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for {
		if receipt == nil {
			r, err := c.backend.TransactionReceipt(ctx, hash)
			if err != nil {
				return nil, err
			}
			if r != nil && r.BlockNumber != nil {
				receipt = r
			}
		}

		if receipt != nil {
			head, err := c.backend.BlockNumber(ctx)
			if err != nil {
				return nil, err
			}
			mined := receipt.BlockNumber.Uint64()
			if head >= mined && head-mined+1 >= c.confirmations {
				return receipt, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// mintedTokenIDs returns the ids of Transfer(0x0 -> to) logs emitted by this contract.
func (c *Contract) mintedTokenIDs(logs []*types.Log, to common.Address) []uint64 {
	var ids []uint64
	for _, l := range logs {
		ev, ok := parseTransferLog(l)
		if !ok || l.Address != c.address {
			continue
		}
		if ev.From == (common.Address{}) && ev.To == to {
			ids = append(ids, ev.TokenID)
		}
	}
	return ids
}

// isNonexistentToken reports whether err is a revert caused by an unminted id.
func isNonexistentToken(err error) bool {
	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) {
		return false
	}

	selector := tokenABI.Errors["ERC721NonexistentToken"].ID
	if data := rpcErr.revertData(); len(data) >= 4 && bytes.Equal(data[:4], selector[:4]) {
		return true
	}

	// Pre-v5 OpenZeppelin contracts revert with a reason string instead.
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "nonexistent token") || strings.Contains(msg, "invalid token id")
}

var _ Provider = (*Contract)(nil)
