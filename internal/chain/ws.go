package chain

import "context"

// TransferSubscriber streams Transfer events of the token contract.
type TransferSubscriber interface {
	// SubscribeTransfers subscribes to Transfer logs matching the filter.
	SubscribeTransfers(ctx context.Context, filter TransferFilter) (<-chan TransferEvent, error)

	// Close closes the subscription connection.
	Close() error
}

var _ TransferSubscriber = (*WSClient)(nil)
