package order

import (
	"context"

	orderv1 "github.com/byteball/btc-exchange/internal/domain/order/v1"
	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
)

// OrderRepository defines the persistence operations for resting orders.
type OrderRepository interface {
	BestBuyer(ctx context.Context) (*orderv1.BuyerOrder, error)
	BestSeller(ctx context.Context) (*orderv1.SellerOrder, error)

	InsertBuyer(ctx context.Context, depositID int64, deviceAddress string, satoshiAmount int64, price float64) (int64, error)
	InsertSeller(ctx context.Context, depositID int64, deviceAddress string, byteAmount int64, price float64) (int64, error)
	InsertBuyerRemainder(ctx context.Context, parent *orderv1.BuyerOrder, satoshiAmount int64) (int64, error)
	InsertSellerRemainder(ctx context.Context, parent *orderv1.SellerOrder, byteAmount int64) (int64, error)

	MarkBuyerMatched(ctx context.Context, orderID int64, props orderv1.MatchProps) error
	MarkSellerMatched(ctx context.Context, orderID int64, props orderv1.MatchProps) error

	ActiveBuyers(ctx context.Context) ([]*orderv1.BuyerOrder, error)
	ActiveSellers(ctx context.Context) ([]*orderv1.SellerOrder, error)
	ActiveBuyersAtOrAbove(ctx context.Context, price float64) ([]*orderv1.BuyerOrder, error)
	ActiveSellersAtOrBelow(ctx context.Context, price float64) ([]*orderv1.SellerOrder, error)
	ActiveBuyersByDevice(ctx context.Context, deviceAddress string) ([]*orderv1.BuyerOrder, error)
	ActiveSellersByDevice(ctx context.Context, deviceAddress string) ([]*orderv1.SellerOrder, error)

	RepriceBuyers(ctx context.Context, deviceAddress string, price float64) (int64, error)
	RepriceSellers(ctx context.Context, deviceAddress string, price float64) (int64, error)

	BookLevels(ctx context.Context) ([]orderv1.Level, error)
	OwedBytes(ctx context.Context) (int64, error)
	OwedSatoshis(ctx context.Context) (int64, error)

	PendingBuyerPayouts(ctx context.Context) ([]settlementv1.Obligation, error)
	PendingSellerPayouts(ctx context.Context) ([]settlementv1.Obligation, error)
	InsertBuyerExecution(ctx context.Context, orderID int64) (bool, error)
	InsertSellerExecution(ctx context.Context, orderID int64) (bool, error)
	StampBuyerExecuted(ctx context.Context, orderID int64, unit string) error
	StampSellerExecuted(ctx context.Context, orderID int64, txid string) error
}
