package orderv1

import (
	"time"

	"github.com/byteball/btc-exchange/pkg/errors"
)

// Side represents which side of the book an order rests on.
type Side string

const (
	// SideBuy is an order paying satoshis for bytes.
	SideBuy Side = "buy"
	// SideSell is an order paying bytes for satoshis.
	SideSell Side = "sell"
)

// BuyerOrder is a resting order to buy bytes. The amount is kept in
// satoshis (the deposited asset); the byte leg is computed at execution.
type BuyerOrder struct {
	ID            int64
	DepositID     int64
	DeviceAddress string
	SatoshiAmount int64
	Price         float64
	IsActive      bool
	LastUpdate    time.Time
	PrevOrderID   *int64

	MatchDate           *time.Time
	ExecutionPrice      *float64
	SoldSatoshiAmount   *int64
	ByteAmount          *int64
	OppositeOrderID     *int64 // matched seller order
	SellerInstantDealID *int64 // or consumed by a seller instant deal

	ExecutionDate *time.Time
	Unit          *string
}

// SellerOrder is a resting order to sell bytes. The amount is kept in
// bytes; the satoshi leg is computed at execution.
type SellerOrder struct {
	ID            int64
	DepositID     int64
	DeviceAddress string
	ByteAmount    int64
	Price         float64
	IsActive      bool
	LastUpdate    time.Time
	PrevOrderID   *int64

	MatchDate          *time.Time
	ExecutionPrice     *float64
	SoldByteAmount     *int64
	SatoshiAmount      *int64
	OppositeOrderID    *int64 // matched buyer order
	BuyerInstantDealID *int64 // or consumed by a buyer instant deal

	ExecutionDate *time.Time
	Txid          *string
}

// IsExecuted reports whether the order carries any execution columns. A
// best-active order with any of these set means corrupted book state.
func (o *BuyerOrder) IsExecuted() bool {
	return o.Unit != nil || o.ExecutionPrice != nil || o.SoldSatoshiAmount != nil ||
		o.ByteAmount != nil || o.MatchDate != nil || o.ExecutionDate != nil ||
		o.OppositeOrderID != nil || o.SellerInstantDealID != nil
}

// IsExecuted reports whether the order carries any execution columns.
func (o *SellerOrder) IsExecuted() bool {
	return o.Txid != nil || o.ExecutionPrice != nil || o.SoldByteAmount != nil ||
		o.SatoshiAmount != nil || o.MatchDate != nil || o.ExecutionDate != nil ||
		o.OppositeOrderID != nil || o.BuyerInstantDealID != nil
}

// MatchProps carries the execution columns written when an order is closed.
// Exactly one of OppositeOrderID and InstantDealID must be set.
type MatchProps struct {
	ExecutionPrice     float64
	TransactedSatoshis int64
	TransactedBytes    int64
	OppositeOrderID    *int64
	InstantDealID      *int64
}

// Validate enforces the counterpart-reference invariant.
func (p MatchProps) Validate() error {
	if p.ExecutionPrice <= 0 || p.TransactedSatoshis <= 0 || p.TransactedBytes <= 0 {
		return errors.NewErrorDetailsWithObject(
			"match props carry a non-positive amount or price",
			string(errors.InvariantViolation), "match_props", p)
	}
	if p.OppositeOrderID == nil && p.InstantDealID == nil {
		return errors.NewErrorDetails(
			"matched order has no counterpart reference",
			string(errors.InvariantViolation), "match_props")
	}
	if p.OppositeOrderID != nil && p.InstantDealID != nil {
		return errors.NewErrorDetails(
			"matched order has both counterpart references",
			string(errors.InvariantViolation), "match_props")
	}
	return nil
}

// Level is one aggregated price level of the book.
type Level struct {
	Price float64
	Side  Side
	// TotalGB is the resting volume expressed in GB. Buy-side satoshi
	// volume is converted at the level price.
	TotalGB float64
}
