package instantdeal

import (
	"context"

	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
)

// InstantDealRepository defines the persistence operations for instant deals.
type InstantDealRepository interface {
	InsertBuyerDeal(ctx context.Context, depositID, satoshiAmount, byteAmount int64, price float64) (int64, error)
	InsertSellerDeal(ctx context.Context, depositID, satoshiAmount, byteAmount int64, price float64) (int64, error)

	PendingBuyerDealPayouts(ctx context.Context) ([]settlementv1.Obligation, error)
	PendingSellerDealPayouts(ctx context.Context) ([]settlementv1.Obligation, error)
	InsertBuyerDealExecution(ctx context.Context, dealID int64) (bool, error)
	InsertSellerDealExecution(ctx context.Context, dealID int64) (bool, error)
	StampBuyerDealExecuted(ctx context.Context, dealID int64, unit string) error
	StampSellerDealExecuted(ctx context.Context, dealID int64, txid string) error
}
