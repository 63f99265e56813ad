package binding

import (
	"context"

	bindingv1 "github.com/byteball/btc-exchange/internal/domain/binding/v1"
)

// BindingRepository defines the persistence operations for address bindings.
type BindingRepository interface {
	GetBuyerBinding(ctx context.Context, deviceAddress, outByteballAddress string) (*bindingv1.BuyerBinding, error)
	InsertBuyerBinding(ctx context.Context, deviceAddress, outByteballAddress, toBitcoinAddress string) (int64, error)
	GetSellerBinding(ctx context.Context, deviceAddress, outBitcoinAddress string) (*bindingv1.SellerBinding, error)
	InsertSellerBinding(ctx context.Context, deviceAddress, outBitcoinAddress, toByteballAddress string) (int64, error)

	BuyerBindingByBitcoinAddress(ctx context.Context, toBitcoinAddress string) (*bindingv1.BuyerBinding, error)
	SellerBindingByByteballAddress(ctx context.Context, toByteballAddress string) (*bindingv1.SellerBinding, error)
}
