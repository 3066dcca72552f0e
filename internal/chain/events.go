package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TransferEvent is a decoded ERC-721 Transfer log.
type TransferEvent struct {
	From        common.Address
	To          common.Address
	TokenID     uint64
	Contract    common.Address
	TxHash      common.Hash
	BlockNumber uint64
	// Removed is set when the log was dropped by a chain reorganisation.
	Removed bool
}

// IsMint reports whether the transfer created the token.
func (e TransferEvent) IsMint() bool {
	return e.From == (common.Address{})
}

// parseTransferLog decodes an ERC-721 Transfer log. All three arguments are
// indexed, so they live in the topics.
func parseTransferLog(l *types.Log) (TransferEvent, bool) {
	if l == nil || len(l.Topics) != 4 || l.Topics[0] != TransferTopic {
		return TransferEvent{}, false
	}

	id := new(big.Int).SetBytes(l.Topics[3].Bytes())
	if !id.IsUint64() {
		return TransferEvent{}, false
	}

	return TransferEvent{
		From:        common.BytesToAddress(l.Topics[1].Bytes()),
		To:          common.BytesToAddress(l.Topics[2].Bytes()),
		TokenID:     id.Uint64(),
		Contract:    l.Address,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		Removed:     l.Removed,
	}, true
}

// addressTopic left-pads an address to a 32-byte topic.
func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}
