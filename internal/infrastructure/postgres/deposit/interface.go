package deposit

import (
	"context"

	depositv1 "github.com/byteball/btc-exchange/internal/domain/deposit/v1"
)

// DepositRepository defines the persistence operations for inbound deposits.
type DepositRepository interface {
	UpsertBuyerDeposit(ctx context.Context, bindingID int64, txid string, satoshiAmount int64, countConfirmations int) (int64, bool, error)
	InsertSellerDeposit(ctx context.Context, bindingID int64, unit string, byteAmount int64, isStable bool) (int64, bool, error)
	MarkSellerDepositStable(ctx context.Context, unit string) ([]int64, error)

	RipeBuyerDeposits(ctx context.Context, minConfirmations int) ([]depositv1.PendingBuyerDeposit, error)
	RipeSellerDeposits(ctx context.Context) ([]depositv1.PendingSellerDeposit, error)

	FinishBuyerDeposit(ctx context.Context, depositID, feeSatoshis, netSatoshis int64) error
	FinishSellerDeposit(ctx context.Context, depositID, feeBytes, netBytes int64) error
}
