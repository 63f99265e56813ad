package price

import "context"

// PriceRepository defines the persistence operations for price intents.
type PriceRepository interface {
	GetPrices(ctx context.Context, deviceAddress string) (buyPrice, sellPrice *float64, err error)
	SetBuyPrice(ctx context.Context, deviceAddress string, price *float64) error
	SetSellPrice(ctx context.Context, deviceAddress string, price *float64) error
}
