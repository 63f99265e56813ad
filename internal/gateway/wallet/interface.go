package wallet

import "context"

// WalletGateway is the byte rail seen by the usecases.
type WalletGateway interface {
	NewReceivingAddress(ctx context.Context) (string, error)
	IssuePayment(ctx context.Context, address string, amount int64) (string, error)
	Balance(ctx context.Context) (int64, error)
}
