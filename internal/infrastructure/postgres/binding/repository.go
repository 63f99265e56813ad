package binding

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	bindingv1 "github.com/byteball/btc-exchange/internal/domain/binding/v1"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// Repository persists the deposit-address to payout-address bindings.
type Repository struct {
	client postgresql.PostgreSQLClient
}

// NewRepository creates a new binding repository.
func NewRepository(client postgresql.PostgreSQLClient) *Repository {
	return &Repository{
		client: client,
	}
}

// GetBuyerBinding looks up an existing buyer binding by the participant and
// their payout address. Returns nil when no binding exists.
func (r *Repository) GetBuyerBinding(ctx context.Context, deviceAddress, outByteballAddress string) (*bindingv1.BuyerBinding, error) {
	query := `SELECT byte_buyer_binding_id, device_address, out_byteball_address, to_bitcoin_address
		FROM byte_buyer_bindings
		WHERE device_address = $1 AND out_byteball_address = $2`

	b := &bindingv1.BuyerBinding{}
	err := r.client.QueryRow(ctx, query, deviceAddress, outByteballAddress).
		Scan(&b.ID, &b.DeviceAddress, &b.OutByteballAddress, &b.ToBitcoinAddress)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query buyer binding: %w", err)
	}
	return b, nil
}

// InsertBuyerBinding records a fresh buyer binding.
func (r *Repository) InsertBuyerBinding(ctx context.Context, deviceAddress, outByteballAddress, toBitcoinAddress string) (int64, error) {
	query := `INSERT INTO byte_buyer_bindings (device_address, out_byteball_address, to_bitcoin_address)
		VALUES ($1, $2, $3)
		RETURNING byte_buyer_binding_id`

	var id int64
	err := r.client.QueryRow(ctx, query, deviceAddress, outByteballAddress, toBitcoinAddress).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert buyer binding: %w", err)
	}
	return id, nil
}

// GetSellerBinding looks up an existing seller binding by the participant
// and their payout address. Returns nil when no binding exists.
func (r *Repository) GetSellerBinding(ctx context.Context, deviceAddress, outBitcoinAddress string) (*bindingv1.SellerBinding, error) {
	query := `SELECT byte_seller_binding_id, device_address, out_bitcoin_address, to_byteball_address
		FROM byte_seller_bindings
		WHERE device_address = $1 AND out_bitcoin_address = $2`

	b := &bindingv1.SellerBinding{}
	err := r.client.QueryRow(ctx, query, deviceAddress, outBitcoinAddress).
		Scan(&b.ID, &b.DeviceAddress, &b.OutBitcoinAddress, &b.ToByteballAddress)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query seller binding: %w", err)
	}
	return b, nil
}

// InsertSellerBinding records a fresh seller binding.
func (r *Repository) InsertSellerBinding(ctx context.Context, deviceAddress, outBitcoinAddress, toByteballAddress string) (int64, error) {
	query := `INSERT INTO byte_seller_bindings (device_address, out_bitcoin_address, to_byteball_address)
		VALUES ($1, $2, $3)
		RETURNING byte_seller_binding_id`

	var id int64
	err := r.client.QueryRow(ctx, query, deviceAddress, outBitcoinAddress, toByteballAddress).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert seller binding: %w", err)
	}
	return id, nil
}

// BuyerBindingByBitcoinAddress resolves the binding owning a BTC deposit
// address seen in a rescan. Returns nil for foreign addresses.
func (r *Repository) BuyerBindingByBitcoinAddress(ctx context.Context, toBitcoinAddress string) (*bindingv1.BuyerBinding, error) {
	query := `SELECT byte_buyer_binding_id, device_address, out_byteball_address, to_bitcoin_address
		FROM byte_buyer_bindings
		WHERE to_bitcoin_address = $1`

	b := &bindingv1.BuyerBinding{}
	err := r.client.QueryRow(ctx, query, toBitcoinAddress).
		Scan(&b.ID, &b.DeviceAddress, &b.OutByteballAddress, &b.ToBitcoinAddress)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query buyer binding by bitcoin address: %w", err)
	}
	return b, nil
}

// SellerBindingByByteballAddress resolves the binding owning a byteball
// deposit address seen in a ledger event. Returns nil for foreign addresses.
func (r *Repository) SellerBindingByByteballAddress(ctx context.Context, toByteballAddress string) (*bindingv1.SellerBinding, error) {
	query := `SELECT byte_seller_binding_id, device_address, out_bitcoin_address, to_byteball_address
		FROM byte_seller_bindings
		WHERE to_byteball_address = $1`

	b := &bindingv1.SellerBinding{}
	err := r.client.QueryRow(ctx, query, toByteballAddress).
		Scan(&b.ID, &b.DeviceAddress, &b.OutBitcoinAddress, &b.ToByteballAddress)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query seller binding by byteball address: %w", err)
	}
	return b, nil
}
