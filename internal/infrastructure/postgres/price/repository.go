package price

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// Repository persists per-participant price intents in BTC per GB. A nil
// price means the participant wants instant execution on that side.
type Repository struct {
	client postgresql.PostgreSQLClient
}

// NewRepository creates a new price intent repository.
func NewRepository(client postgresql.PostgreSQLClient) *Repository {
	return &Repository{
		client: client,
	}
}

// GetPrices returns the participant's current buy and sell intents. Both
// are nil for unknown participants.
func (r *Repository) GetPrices(ctx context.Context, deviceAddress string) (buyPrice, sellPrice *float64, err error) {
	query := `SELECT buy_price, sell_price FROM current_prices WHERE device_address = $1`

	err = r.client.QueryRow(ctx, query, deviceAddress).Scan(&buyPrice, &sellPrice)
	if err == pgx.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query prices: %w", err)
	}
	return buyPrice, sellPrice, nil
}

// SetBuyPrice upserts the participant's buy intent. A nil price clears it.
func (r *Repository) SetBuyPrice(ctx context.Context, deviceAddress string, price *float64) error {
	query := `INSERT INTO current_prices (device_address, buy_price)
		VALUES ($1, $2)
		ON CONFLICT (device_address) DO UPDATE SET buy_price = EXCLUDED.buy_price`

	if _, err := r.client.Exec(ctx, query, deviceAddress, price); err != nil {
		return fmt.Errorf("failed to set buy price: %w", err)
	}
	return nil
}

// SetSellPrice upserts the participant's sell intent. A nil price clears it.
func (r *Repository) SetSellPrice(ctx context.Context, deviceAddress string, price *float64) error {
	query := `INSERT INTO current_prices (device_address, sell_price)
		VALUES ($1, $2)
		ON CONFLICT (device_address) DO UPDATE SET sell_price = EXCLUDED.sell_price`

	if _, err := r.client.Exec(ctx, query, deviceAddress, price); err != nil {
		return fmt.Errorf("failed to set sell price: %w", err)
	}
	return nil
}
