package price

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	mockPg "github.com/byteball/btc-exchange/pkg/postgresql/mock"
)

// stubRow satisfies pgx.Row with a canned Scan.
type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error { return r.scan(dest...) }

func TestPrice_SetBuyPrice(t *testing.T) {
	ctx := context.Background()
	query := `INSERT INTO current_prices (device_address, buy_price)
		VALUES ($1, $2)
		ON CONFLICT (device_address) DO UPDATE SET buy_price = EXCLUDED.buy_price`
	price := 0.04

	testCases := []struct {
		name     string
		price    *float64
		mockFn   func(mockpg *mockPg.MockPostgreSQLClient, price *float64)
		assertFn func(t *testing.T, err error)
	}{
		{
			name:  "success",
			price: &price,
			mockFn: func(mockpg *mockPg.MockPostgreSQLClient, price *float64) {
				mockpg.EXPECT().
					Exec(ctx, query, "dev-merchant", price).
					Return(pgconn.CommandTag{}, nil)
			},
			assertFn: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name:  "nil clears the intent",
			price: nil,
			mockFn: func(mockpg *mockPg.MockPostgreSQLClient, price *float64) {
				mockpg.EXPECT().
					Exec(ctx, query, "dev-merchant", price).
					Return(pgconn.CommandTag{}, nil)
			},
			assertFn: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name:  "store error surfaces",
			price: &price,
			mockFn: func(mockpg *mockPg.MockPostgreSQLClient, price *float64) {
				mockpg.EXPECT().
					Exec(ctx, query, "dev-merchant", price).
					Return(pgconn.CommandTag{}, errors.New("connection refused"))
			},
			assertFn: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "failed to set buy price")
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockpg := mockPg.NewMockPostgreSQLClient(ctrl)
			tc.mockFn(mockpg, tc.price)

			repo := NewRepository(mockpg)
			tc.assertFn(t, repo.SetBuyPrice(ctx, "dev-merchant", tc.price))
		})
	}
}

func TestPrice_GetPrices(t *testing.T) {
	ctx := context.Background()
	query := `SELECT buy_price, sell_price FROM current_prices WHERE device_address = $1`

	t.Run("known participant", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockpg := mockPg.NewMockPostgreSQLClient(ctrl)
		mockpg.EXPECT().
			QueryRow(ctx, query, "dev-merchant").
			Return(stubRow{scan: func(dest ...any) error {
				buy := 0.04
				*dest[0].(**float64) = &buy
				*dest[1].(**float64) = nil
				return nil
			}})

		repo := NewRepository(mockpg)
		buy, sell, err := repo.GetPrices(ctx, "dev-merchant")
		assert.NoError(t, err)
		assert.Equal(t, 0.04, *buy)
		assert.Nil(t, sell)
	})

	t.Run("unknown participant has no intents", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockpg := mockPg.NewMockPostgreSQLClient(ctrl)
		mockpg.EXPECT().
			QueryRow(ctx, query, "dev-stranger").
			Return(stubRow{scan: func(dest ...any) error { return pgx.ErrNoRows }})

		repo := NewRepository(mockpg)
		buy, sell, err := repo.GetPrices(ctx, "dev-stranger")
		assert.NoError(t, err)
		assert.Nil(t, buy)
		assert.Nil(t, sell)
	})
}
