package bitcoin

import "context"

// BitcoinGateway is the satoshi rail seen by the usecases.
type BitcoinGateway interface {
	NewReceivingAddress(ctx context.Context) (string, error)
	SendPayment(ctx context.Context, address string, satoshis int64) (string, error)
	ListSince(ctx context.Context, blockHash string) ([]Received, string, error)
	Balance(ctx context.Context) (int64, error)
}
