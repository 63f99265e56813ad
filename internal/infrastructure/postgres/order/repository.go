package order

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	orderv1 "github.com/byteball/btc-exchange/internal/domain/order/v1"
	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// Repository persists resting orders on both sides of the book.
type Repository struct {
	client postgresql.PostgreSQLClient
}

// NewRepository creates a new order repository.
func NewRepository(client postgresql.PostgreSQLClient) *Repository {
	return &Repository{
		client: client,
	}
}

const buyerColumns = `byte_buyer_order_id, byte_buyer_deposit_id, device_address,
	satoshi_amount, price, is_active, last_update, prev_byte_buyer_order_id,
	match_date, execution_price, sold_satoshi_amount, byte_amount,
	opposite_byte_seller_order_id, byte_seller_instant_deal_id,
	execution_date, unit`

const sellerColumns = `byte_seller_order_id, byte_seller_deposit_id, device_address,
	byte_amount, price, is_active, last_update, prev_byte_seller_order_id,
	match_date, execution_price, sold_byte_amount, satoshi_amount,
	opposite_byte_buyer_order_id, byte_buyer_instant_deal_id,
	execution_date, txid`

func scanBuyer(row pgx.Row) (*orderv1.BuyerOrder, error) {
	o := &orderv1.BuyerOrder{}
	err := row.Scan(
		&o.ID, &o.DepositID, &o.DeviceAddress,
		&o.SatoshiAmount, &o.Price, &o.IsActive, &o.LastUpdate, &o.PrevOrderID,
		&o.MatchDate, &o.ExecutionPrice, &o.SoldSatoshiAmount, &o.ByteAmount,
		&o.OppositeOrderID, &o.SellerInstantDealID,
		&o.ExecutionDate, &o.Unit,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func scanSeller(row pgx.Row) (*orderv1.SellerOrder, error) {
	o := &orderv1.SellerOrder{}
	err := row.Scan(
		&o.ID, &o.DepositID, &o.DeviceAddress,
		&o.ByteAmount, &o.Price, &o.IsActive, &o.LastUpdate, &o.PrevOrderID,
		&o.MatchDate, &o.ExecutionPrice, &o.SoldByteAmount, &o.SatoshiAmount,
		&o.OppositeOrderID, &o.BuyerInstantDealID,
		&o.ExecutionDate, &o.Txid,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// BestBuyer returns the highest-priced active buy order, oldest first on
// ties. Returns nil when the buy side is empty.
func (r *Repository) BestBuyer(ctx context.Context) (*orderv1.BuyerOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM byte_buyer_orders
		WHERE is_active
		ORDER BY price DESC, last_update ASC
		LIMIT 1`, buyerColumns)

	o, err := scanBuyer(r.client.QueryRow(ctx, query))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query best buyer: %w", err)
	}
	return o, nil
}

// BestSeller returns the lowest-priced active sell order, oldest first on
// ties. Returns nil when the sell side is empty.
func (r *Repository) BestSeller(ctx context.Context) (*orderv1.SellerOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM byte_seller_orders
		WHERE is_active
		ORDER BY price ASC, last_update ASC
		LIMIT 1`, sellerColumns)

	o, err := scanSeller(r.client.QueryRow(ctx, query))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query best seller: %w", err)
	}
	return o, nil
}

// InsertBuyer adds a fresh buy order at the back of its price level.
func (r *Repository) InsertBuyer(ctx context.Context, depositID int64, deviceAddress string, satoshiAmount int64, price float64) (int64, error) {
	query := `INSERT INTO byte_buyer_orders
		(byte_buyer_deposit_id, device_address, satoshi_amount, price)
		VALUES ($1, $2, $3, $4)
		RETURNING byte_buyer_order_id`

	var id int64
	err := r.client.QueryRow(ctx, query, depositID, deviceAddress, satoshiAmount, price).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert buyer order: %w", err)
	}
	return id, nil
}

// InsertSeller adds a fresh sell order at the back of its price level.
func (r *Repository) InsertSeller(ctx context.Context, depositID int64, deviceAddress string, byteAmount int64, price float64) (int64, error) {
	query := `INSERT INTO byte_seller_orders
		(byte_seller_deposit_id, device_address, byte_amount, price)
		VALUES ($1, $2, $3, $4)
		RETURNING byte_seller_order_id`

	var id int64
	err := r.client.QueryRow(ctx, query, depositID, deviceAddress, byteAmount, price).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert seller order: %w", err)
	}
	return id, nil
}

// InsertBuyerRemainder adds the unfilled tail of a partially executed buy
// order. It inherits the parent's price and last_update so the remainder
// keeps its time priority.
func (r *Repository) InsertBuyerRemainder(ctx context.Context, parent *orderv1.BuyerOrder, satoshiAmount int64) (int64, error) {
	query := `INSERT INTO byte_buyer_orders
		(byte_buyer_deposit_id, device_address, satoshi_amount, price, last_update, prev_byte_buyer_order_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING byte_buyer_order_id`

	var id int64
	err := r.client.QueryRow(ctx, query,
		parent.DepositID, parent.DeviceAddress, satoshiAmount, parent.Price, parent.LastUpdate, parent.ID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert buyer remainder: %w", err)
	}
	return id, nil
}

// InsertSellerRemainder adds the unfilled tail of a partially executed sell
// order, keeping the parent's price and time priority.
func (r *Repository) InsertSellerRemainder(ctx context.Context, parent *orderv1.SellerOrder, byteAmount int64) (int64, error) {
	query := `INSERT INTO byte_seller_orders
		(byte_seller_deposit_id, device_address, byte_amount, price, last_update, prev_byte_seller_order_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING byte_seller_order_id`

	var id int64
	err := r.client.QueryRow(ctx, query,
		parent.DepositID, parent.DeviceAddress, byteAmount, parent.Price, parent.LastUpdate, parent.ID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert seller remainder: %w", err)
	}
	return id, nil
}

// MarkBuyerMatched deactivates a buy order and writes its execution columns.
func (r *Repository) MarkBuyerMatched(ctx context.Context, orderID int64, props orderv1.MatchProps) error {
	if err := props.Validate(); err != nil {
		return err
	}

	query := `UPDATE byte_buyer_orders
		SET is_active = FALSE,
			match_date = NOW(),
			execution_price = $2,
			sold_satoshi_amount = $3,
			byte_amount = $4,
			opposite_byte_seller_order_id = $5,
			byte_seller_instant_deal_id = $6
		WHERE byte_buyer_order_id = $1 AND is_active`

	tag, err := r.client.Exec(ctx, query, orderID,
		props.ExecutionPrice, props.TransactedSatoshis, props.TransactedBytes,
		props.OppositeOrderID, props.InstantDealID)
	if err != nil {
		return fmt.Errorf("failed to mark buyer order matched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("buyer order %d is not active", orderID)
	}
	return nil
}

// MarkSellerMatched deactivates a sell order and writes its execution columns.
func (r *Repository) MarkSellerMatched(ctx context.Context, orderID int64, props orderv1.MatchProps) error {
	if err := props.Validate(); err != nil {
		return err
	}

	query := `UPDATE byte_seller_orders
		SET is_active = FALSE,
			match_date = NOW(),
			execution_price = $2,
			sold_byte_amount = $3,
			satoshi_amount = $4,
			opposite_byte_buyer_order_id = $5,
			byte_buyer_instant_deal_id = $6
		WHERE byte_seller_order_id = $1 AND is_active`

	tag, err := r.client.Exec(ctx, query, orderID,
		props.ExecutionPrice, props.TransactedBytes, props.TransactedSatoshis,
		props.OppositeOrderID, props.InstantDealID)
	if err != nil {
		return fmt.Errorf("failed to mark seller order matched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("seller order %d is not active", orderID)
	}
	return nil
}

// ActiveBuyers returns the active buy side in book order.
func (r *Repository) ActiveBuyers(ctx context.Context) ([]*orderv1.BuyerOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM byte_buyer_orders
		WHERE is_active
		ORDER BY price DESC, last_update ASC`, buyerColumns)
	return r.queryBuyers(ctx, query)
}

// ActiveSellers returns the active sell side in book order.
func (r *Repository) ActiveSellers(ctx context.Context) ([]*orderv1.SellerOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM byte_seller_orders
		WHERE is_active
		ORDER BY price ASC, last_update ASC`, sellerColumns)
	return r.querySellers(ctx, query)
}

// ActiveBuyersAtOrAbove returns the active buy orders an instant seller
// can hit at the given rate, best first.
func (r *Repository) ActiveBuyersAtOrAbove(ctx context.Context, price float64) ([]*orderv1.BuyerOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM byte_buyer_orders
		WHERE is_active AND price >= $1
		ORDER BY price DESC, last_update ASC`, buyerColumns)
	return r.queryBuyers(ctx, query, price)
}

// ActiveSellersAtOrBelow returns the active sell orders an instant buyer
// can lift at the given rate, best first.
func (r *Repository) ActiveSellersAtOrBelow(ctx context.Context, price float64) ([]*orderv1.SellerOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM byte_seller_orders
		WHERE is_active AND price <= $1
		ORDER BY price ASC, last_update ASC`, sellerColumns)
	return r.querySellers(ctx, query, price)
}

// ActiveBuyersByDevice returns a participant's open buy orders, best first.
func (r *Repository) ActiveBuyersByDevice(ctx context.Context, deviceAddress string) ([]*orderv1.BuyerOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM byte_buyer_orders
		WHERE is_active AND device_address = $1
		ORDER BY price DESC, last_update ASC`, buyerColumns)
	return r.queryBuyers(ctx, query, deviceAddress)
}

// ActiveSellersByDevice returns a participant's open sell orders, best first.
func (r *Repository) ActiveSellersByDevice(ctx context.Context, deviceAddress string) ([]*orderv1.SellerOrder, error) {
	query := fmt.Sprintf(`SELECT %s FROM byte_seller_orders
		WHERE is_active AND device_address = $1
		ORDER BY price ASC, last_update ASC`, sellerColumns)
	return r.querySellers(ctx, query, deviceAddress)
}

func (r *Repository) queryBuyers(ctx context.Context, query string, args ...any) ([]*orderv1.BuyerOrder, error) {
	rows, err := r.client.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query buyer orders: %w", err)
	}
	defer rows.Close()

	var orders []*orderv1.BuyerOrder
	for rows.Next() {
		o, err := scanBuyer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan buyer order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *Repository) querySellers(ctx context.Context, query string, args ...any) ([]*orderv1.SellerOrder, error) {
	rows, err := r.client.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query seller orders: %w", err)
	}
	defer rows.Close()

	var orders []*orderv1.SellerOrder
	for rows.Next() {
		o, err := scanSeller(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan seller order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// RepriceBuyers moves every active buy order of a participant to the new
// price, resetting time priority. Returns the number of orders moved.
func (r *Repository) RepriceBuyers(ctx context.Context, deviceAddress string, price float64) (int64, error) {
	query := `UPDATE byte_buyer_orders
		SET price = $2, last_update = NOW()
		WHERE device_address = $1 AND is_active AND price != $2`

	tag, err := r.client.Exec(ctx, query, deviceAddress, price)
	if err != nil {
		return 0, fmt.Errorf("failed to reprice buyer orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RepriceSellers moves every active sell order of a participant to the new
// price, resetting time priority. Returns the number of orders moved.
func (r *Repository) RepriceSellers(ctx context.Context, deviceAddress string, price float64) (int64, error) {
	query := `UPDATE byte_seller_orders
		SET price = $2, last_update = NOW()
		WHERE device_address = $1 AND is_active AND price != $2`

	tag, err := r.client.Exec(ctx, query, deviceAddress, price)
	if err != nil {
		return 0, fmt.Errorf("failed to reprice seller orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BookLevels returns both sides of the book aggregated by price, buy side
// best first then sell side best first. Buy volume is converted to GB at
// the level price.
func (r *Repository) BookLevels(ctx context.Context) ([]orderv1.Level, error) {
	query := `
		SELECT price, 'buy' AS side,
			SUM(satoshi_amount) / price / 1e8 AS total_gb,
			0 AS ord
		FROM byte_buyer_orders WHERE is_active GROUP BY price
		UNION ALL
		SELECT price, 'sell' AS side,
			SUM(byte_amount) / 1e9 AS total_gb,
			1 AS ord
		FROM byte_seller_orders WHERE is_active GROUP BY price
		ORDER BY ord ASC, CASE WHEN ord = 0 THEN -price ELSE price END ASC`

	rows, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query book levels: %w", err)
	}
	defer rows.Close()

	var levels []orderv1.Level
	for rows.Next() {
		var l orderv1.Level
		var ord int
		if err := rows.Scan(&l.Price, &l.Side, &l.TotalGB, &ord); err != nil {
			return nil, fmt.Errorf("failed to scan book level: %w", err)
		}
		levels = append(levels, l)
	}
	return levels, rows.Err()
}

// OwedBytes sums every byte obligation not yet paid out: resting sell
// inventory, matched buy orders awaiting payout, and unpaid buyer instant
// deals.
func (r *Repository) OwedBytes(ctx context.Context) (int64, error) {
	query := `SELECT
		COALESCE((SELECT SUM(byte_amount) FROM byte_seller_orders WHERE is_active), 0) +
		COALESCE((SELECT SUM(byte_amount) FROM byte_buyer_orders
			WHERE NOT is_active AND execution_date IS NULL), 0) +
		COALESCE((SELECT SUM(byte_amount) FROM byte_buyer_instant_deals
			WHERE execution_date IS NULL), 0)`

	var owed int64
	if err := r.client.QueryRow(ctx, query).Scan(&owed); err != nil {
		return 0, fmt.Errorf("failed to sum owed bytes: %w", err)
	}
	return owed, nil
}

// OwedSatoshis sums every satoshi obligation not yet paid out: resting buy
// inventory, matched sell orders awaiting payout, and unpaid seller
// instant deals.
func (r *Repository) OwedSatoshis(ctx context.Context) (int64, error) {
	query := `SELECT
		COALESCE((SELECT SUM(satoshi_amount) FROM byte_buyer_orders WHERE is_active), 0) +
		COALESCE((SELECT SUM(satoshi_amount) FROM byte_seller_orders
			WHERE NOT is_active AND execution_date IS NULL), 0) +
		COALESCE((SELECT SUM(satoshi_amount) FROM byte_seller_instant_deals
			WHERE execution_date IS NULL), 0)`

	var owed int64
	if err := r.client.QueryRow(ctx, query).Scan(&owed); err != nil {
		return 0, fmt.Errorf("failed to sum owed satoshis: %w", err)
	}
	return owed, nil
}

// PendingBuyerPayouts lists matched buy orders whose bytes have not left
// yet, joined with the destination address from the binding.
func (r *Repository) PendingBuyerPayouts(ctx context.Context) ([]settlementv1.Obligation, error) {
	query := `SELECT o.byte_buyer_order_id, o.byte_amount, o.device_address, b.out_byteball_address
		FROM byte_buyer_orders o
		JOIN byte_buyer_deposits dep USING (byte_buyer_deposit_id)
		JOIN byte_buyer_bindings b USING (byte_buyer_binding_id)
		WHERE NOT o.is_active AND o.match_date IS NOT NULL AND o.execution_date IS NULL
		ORDER BY o.match_date ASC`

	return r.queryObligations(ctx, query, settlementv1.KindBookBytes)
}

// PendingSellerPayouts lists matched sell orders whose satoshis have not
// left yet, joined with the destination address from the binding.
func (r *Repository) PendingSellerPayouts(ctx context.Context) ([]settlementv1.Obligation, error) {
	query := `SELECT o.byte_seller_order_id, o.satoshi_amount, o.device_address, b.out_bitcoin_address
		FROM byte_seller_orders o
		JOIN byte_seller_deposits dep USING (byte_seller_deposit_id)
		JOIN byte_seller_bindings b USING (byte_seller_binding_id)
		WHERE NOT o.is_active AND o.match_date IS NOT NULL AND o.execution_date IS NULL
		ORDER BY o.match_date ASC`

	return r.queryObligations(ctx, query, settlementv1.KindBookBTC)
}

func (r *Repository) queryObligations(ctx context.Context, query string, kind settlementv1.Kind) ([]settlementv1.Obligation, error) {
	rows, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending payouts: %w", err)
	}
	defer rows.Close()

	var obligations []settlementv1.Obligation
	for rows.Next() {
		o := settlementv1.Obligation{Kind: kind}
		if err := rows.Scan(&o.SourceID, &o.Amount, &o.DeviceAddress, &o.ToAddress); err != nil {
			return nil, fmt.Errorf("failed to scan pending payout: %w", err)
		}
		obligations = append(obligations, o)
	}
	return obligations, rows.Err()
}

// InsertBuyerExecution records the attempt marker for a buy-order payout.
// Returns false when the marker already exists, meaning a payout was
// already attempted for this order.
func (r *Repository) InsertBuyerExecution(ctx context.Context, orderID int64) (bool, error) {
	query := `INSERT INTO byte_buyer_order_executions (byte_buyer_order_id)
		VALUES ($1) ON CONFLICT DO NOTHING`

	tag, err := r.client.Exec(ctx, query, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to insert buyer execution marker: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertSellerExecution records the attempt marker for a sell-order payout.
func (r *Repository) InsertSellerExecution(ctx context.Context, orderID int64) (bool, error) {
	query := `INSERT INTO byte_seller_order_executions (byte_seller_order_id)
		VALUES ($1) ON CONFLICT DO NOTHING`

	tag, err := r.client.Exec(ctx, query, orderID)
	if err != nil {
		return false, fmt.Errorf("failed to insert seller execution marker: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// StampBuyerExecuted finalizes a buy-order payout with the ledger unit
// that carried the bytes.
func (r *Repository) StampBuyerExecuted(ctx context.Context, orderID int64, unit string) error {
	query := `UPDATE byte_buyer_orders
		SET execution_date = NOW(), unit = $2
		WHERE byte_buyer_order_id = $1`

	if _, err := r.client.Exec(ctx, query, orderID, unit); err != nil {
		return fmt.Errorf("failed to stamp buyer order executed: %w", err)
	}
	return nil
}

// StampSellerExecuted finalizes a sell-order payout with the bitcoin
// transaction that carried the satoshis.
func (r *Repository) StampSellerExecuted(ctx context.Context, orderID int64, txid string) error {
	query := `UPDATE byte_seller_orders
		SET execution_date = NOW(), txid = $2
		WHERE byte_seller_order_id = $1`

	if _, err := r.client.Exec(ctx, query, orderID, txid); err != nil {
		return fmt.Errorf("failed to stamp seller order executed: %w", err)
	}
	return nil
}
