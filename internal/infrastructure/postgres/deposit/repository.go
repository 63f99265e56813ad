package deposit

import (
	"context"
	"fmt"

	depositv1 "github.com/byteball/btc-exchange/internal/domain/deposit/v1"
	"github.com/byteball/btc-exchange/pkg/errors"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// Repository persists inbound deposits on both rails.
type Repository struct {
	client postgresql.PostgreSQLClient
}

// NewRepository creates a new deposit repository.
func NewRepository(client postgresql.PostgreSQLClient) *Repository {
	return &Repository{
		client: client,
	}
}

// UpsertBuyerDeposit records a BTC payment to a buyer binding, or refreshes
// its confirmation count if the txid is already known. Returns the deposit
// id and whether the row was newly inserted.
func (r *Repository) UpsertBuyerDeposit(ctx context.Context, bindingID int64, txid string, satoshiAmount int64, countConfirmations int) (int64, bool, error) {
	query := `INSERT INTO byte_buyer_deposits
		(byte_buyer_binding_id, txid, satoshi_amount, count_confirmations)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (byte_buyer_binding_id, txid) DO UPDATE
			SET count_confirmations = GREATEST(byte_buyer_deposits.count_confirmations, EXCLUDED.count_confirmations)
		RETURNING byte_buyer_deposit_id, (xmax = 0)`

	var id int64
	var inserted bool
	err := r.client.QueryRow(ctx, query, bindingID, txid, satoshiAmount, countConfirmations).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("failed to upsert buyer deposit: %w", err)
	}
	return id, inserted, nil
}

// InsertSellerDeposit records a bytes payment to a seller binding. Returns
// the deposit id and whether the row was newly inserted; a known unit is
// left untouched.
func (r *Repository) InsertSellerDeposit(ctx context.Context, bindingID int64, unit string, byteAmount int64, isStable bool) (int64, bool, error) {
	query := `INSERT INTO byte_seller_deposits
		(byte_seller_binding_id, unit, byte_amount, is_stable)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (byte_seller_binding_id, unit) DO UPDATE
			SET unit = EXCLUDED.unit
		RETURNING byte_seller_deposit_id, (xmax = 0)`

	var id int64
	var inserted bool
	err := r.client.QueryRow(ctx, query, bindingID, unit, byteAmount, isStable).Scan(&id, &inserted)
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert seller deposit: %w", err)
	}
	return id, inserted, nil
}

// MarkSellerDepositStable flips the finality flag for the given unit.
// Returns the deposit ids affected; finalized rows are skipped.
func (r *Repository) MarkSellerDepositStable(ctx context.Context, unit string) ([]int64, error) {
	query := `UPDATE byte_seller_deposits
		SET is_stable = TRUE
		WHERE unit = $1 AND NOT is_stable
		RETURNING byte_seller_deposit_id`

	rows, err := r.client.Query(ctx, query, unit)
	if err != nil {
		return nil, fmt.Errorf("failed to mark seller deposit stable: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan seller deposit id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RipeBuyerDeposits lists confirmed buyer deposits that have not been
// turned into orders or instant deals yet, joined with the binding and the
// participant's current buy intent.
func (r *Repository) RipeBuyerDeposits(ctx context.Context, minConfirmations int) ([]depositv1.PendingBuyerDeposit, error) {
	query := `SELECT d.byte_buyer_deposit_id, d.satoshi_amount,
			b.out_byteball_address, b.device_address, d.confirmation_date, p.buy_price
		FROM byte_buyer_deposits d
		JOIN byte_buyer_bindings b USING (byte_buyer_binding_id)
		LEFT JOIN current_prices p ON p.device_address = b.device_address
		WHERE d.count_confirmations >= $1 AND d.confirmation_date IS NULL
		ORDER BY d.byte_buyer_deposit_id ASC`

	rows, err := r.client.Query(ctx, query, minConfirmations)
	if err != nil {
		return nil, fmt.Errorf("failed to query ripe buyer deposits: %w", err)
	}
	defer rows.Close()

	var deposits []depositv1.PendingBuyerDeposit
	for rows.Next() {
		var d depositv1.PendingBuyerDeposit
		err := rows.Scan(&d.DepositID, &d.SatoshiAmount,
			&d.OutByteballAddress, &d.DeviceAddress, &d.ConfirmationDate, &d.BuyPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ripe buyer deposit: %w", err)
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// RipeSellerDeposits lists stable seller deposits that have not been
// turned into orders or instant deals yet.
func (r *Repository) RipeSellerDeposits(ctx context.Context) ([]depositv1.PendingSellerDeposit, error) {
	query := `SELECT d.byte_seller_deposit_id, d.byte_amount,
			b.out_bitcoin_address, b.device_address, d.finality_date, p.sell_price
		FROM byte_seller_deposits d
		JOIN byte_seller_bindings b USING (byte_seller_binding_id)
		LEFT JOIN current_prices p ON p.device_address = b.device_address
		WHERE d.is_stable AND d.finality_date IS NULL
		ORDER BY d.byte_seller_deposit_id ASC`

	rows, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ripe seller deposits: %w", err)
	}
	defer rows.Close()

	var deposits []depositv1.PendingSellerDeposit
	for rows.Next() {
		var d depositv1.PendingSellerDeposit
		err := rows.Scan(&d.DepositID, &d.ByteAmount,
			&d.OutBitcoinAddress, &d.DeviceAddress, &d.FinalityDate, &d.SellPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ripe seller deposit: %w", err)
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

// FinishBuyerDeposit closes a buyer deposit with its fee split. The
// confirmation date doubles as the consumed flag, keeping the deposit out
// of later sweeps.
func (r *Repository) FinishBuyerDeposit(ctx context.Context, depositID, feeSatoshis, netSatoshis int64) error {
	query := `UPDATE byte_buyer_deposits
		SET confirmation_date = NOW(), fee_satoshi_amount = $2, net_satoshi_amount = $3
		WHERE byte_buyer_deposit_id = $1 AND confirmation_date IS NULL`

	tag, err := r.client.Exec(ctx, query, depositID, feeSatoshis, netSatoshis)
	if err != nil {
		return fmt.Errorf("failed to finish buyer deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewErrorDetails(fmt.Sprintf("buyer deposit %d already consumed", depositID),
			string(errors.DuplicateAttempt), "finish_buyer_deposit")
	}
	return nil
}

// FinishSellerDeposit closes a seller deposit with its fee split.
func (r *Repository) FinishSellerDeposit(ctx context.Context, depositID, feeBytes, netBytes int64) error {
	query := `UPDATE byte_seller_deposits
		SET finality_date = NOW(), fee_byte_amount = $2, net_byte_amount = $3
		WHERE byte_seller_deposit_id = $1 AND finality_date IS NULL`

	tag, err := r.client.Exec(ctx, query, depositID, feeBytes, netBytes)
	if err != nil {
		return fmt.Errorf("failed to finish seller deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewErrorDetails(fmt.Sprintf("seller deposit %d already consumed", depositID),
			string(errors.DuplicateAttempt), "finish_seller_deposit")
	}
	return nil
}
