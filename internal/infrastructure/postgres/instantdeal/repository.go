package instantdeal

import (
	"context"
	"fmt"

	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// Repository persists instant deals and their payout markers.
type Repository struct {
	client postgresql.PostgreSQLClient
}

// NewRepository creates a new instant deal repository.
func NewRepository(client postgresql.PostgreSQLClient) *Repository {
	return &Repository{
		client: client,
	}
}

// InsertBuyerDeal records an immediate BTC-for-bytes fill.
func (r *Repository) InsertBuyerDeal(ctx context.Context, depositID, satoshiAmount, byteAmount int64, price float64) (int64, error) {
	query := `INSERT INTO byte_buyer_instant_deals
		(byte_buyer_deposit_id, satoshi_amount, byte_amount, price)
		VALUES ($1, $2, $3, $4)
		RETURNING byte_buyer_instant_deal_id`

	var id int64
	err := r.client.QueryRow(ctx, query, depositID, satoshiAmount, byteAmount, price).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert buyer instant deal: %w", err)
	}
	return id, nil
}

// InsertSellerDeal records an immediate bytes-for-BTC fill.
func (r *Repository) InsertSellerDeal(ctx context.Context, depositID, satoshiAmount, byteAmount int64, price float64) (int64, error) {
	query := `INSERT INTO byte_seller_instant_deals
		(byte_seller_deposit_id, satoshi_amount, byte_amount, price)
		VALUES ($1, $2, $3, $4)
		RETURNING byte_seller_instant_deal_id`

	var id int64
	err := r.client.QueryRow(ctx, query, depositID, satoshiAmount, byteAmount, price).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert seller instant deal: %w", err)
	}
	return id, nil
}

// PendingBuyerDealPayouts lists buyer deals whose bytes have not left yet.
func (r *Repository) PendingBuyerDealPayouts(ctx context.Context) ([]settlementv1.Obligation, error) {
	query := `SELECT i.byte_buyer_instant_deal_id, i.byte_amount, b.device_address, b.out_byteball_address
		FROM byte_buyer_instant_deals i
		JOIN byte_buyer_deposits d USING (byte_buyer_deposit_id)
		JOIN byte_buyer_bindings b USING (byte_buyer_binding_id)
		WHERE i.execution_date IS NULL
		ORDER BY i.byte_buyer_instant_deal_id ASC`

	return r.queryObligations(ctx, query, settlementv1.KindInstantBytes)
}

// PendingSellerDealPayouts lists seller deals whose satoshis have not left
// yet.
func (r *Repository) PendingSellerDealPayouts(ctx context.Context) ([]settlementv1.Obligation, error) {
	query := `SELECT i.byte_seller_instant_deal_id, i.satoshi_amount, b.device_address, b.out_bitcoin_address
		FROM byte_seller_instant_deals i
		JOIN byte_seller_deposits d USING (byte_seller_deposit_id)
		JOIN byte_seller_bindings b USING (byte_seller_binding_id)
		WHERE i.execution_date IS NULL
		ORDER BY i.byte_seller_instant_deal_id ASC`

	return r.queryObligations(ctx, query, settlementv1.KindInstantBTC)
}

func (r *Repository) queryObligations(ctx context.Context, query string, kind settlementv1.Kind) ([]settlementv1.Obligation, error) {
	rows, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending deal payouts: %w", err)
	}
	defer rows.Close()

	var obligations []settlementv1.Obligation
	for rows.Next() {
		o := settlementv1.Obligation{Kind: kind}
		if err := rows.Scan(&o.SourceID, &o.Amount, &o.DeviceAddress, &o.ToAddress); err != nil {
			return nil, fmt.Errorf("failed to scan pending deal payout: %w", err)
		}
		obligations = append(obligations, o)
	}
	return obligations, rows.Err()
}

// InsertBuyerDealExecution records the attempt marker for a buyer deal
// payout. Returns false when a payout was already attempted.
func (r *Repository) InsertBuyerDealExecution(ctx context.Context, dealID int64) (bool, error) {
	query := `INSERT INTO byte_buyer_instant_deal_executions (byte_buyer_instant_deal_id)
		VALUES ($1) ON CONFLICT DO NOTHING`

	tag, err := r.client.Exec(ctx, query, dealID)
	if err != nil {
		return false, fmt.Errorf("failed to insert buyer deal execution marker: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertSellerDealExecution records the attempt marker for a seller deal
// payout.
func (r *Repository) InsertSellerDealExecution(ctx context.Context, dealID int64) (bool, error) {
	query := `INSERT INTO byte_seller_instant_deal_executions (byte_seller_instant_deal_id)
		VALUES ($1) ON CONFLICT DO NOTHING`

	tag, err := r.client.Exec(ctx, query, dealID)
	if err != nil {
		return false, fmt.Errorf("failed to insert seller deal execution marker: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// StampBuyerDealExecuted finalizes a buyer deal payout with its ledger unit.
func (r *Repository) StampBuyerDealExecuted(ctx context.Context, dealID int64, unit string) error {
	query := `UPDATE byte_buyer_instant_deals
		SET execution_date = NOW(), unit = $2
		WHERE byte_buyer_instant_deal_id = $1`

	if _, err := r.client.Exec(ctx, query, dealID, unit); err != nil {
		return fmt.Errorf("failed to stamp buyer deal executed: %w", err)
	}
	return nil
}

// StampSellerDealExecuted finalizes a seller deal payout with its bitcoin
// transaction id.
func (r *Repository) StampSellerDealExecuted(ctx context.Context, dealID int64, txid string) error {
	query := `UPDATE byte_seller_instant_deals
		SET execution_date = NOW(), txid = $2
		WHERE byte_seller_instant_deal_id = $1`

	if _, err := r.client.Exec(ctx, query, dealID, txid); err != nil {
		return fmt.Errorf("failed to stamp seller deal executed: %w", err)
	}
	return nil
}
