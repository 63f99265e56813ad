package instantv1

import "time"

// Rates are the standing quotes for immediate fills, in BTC per GB.
// BuyRate is what the desk pays for bytes, SellRate is what it charges.
// A nil rate means the desk will not quote that direction.
type Rates struct {
	BuyRate  *float64
	SellRate *float64
}

// BuyerDeal is an immediate fill of a BTC deposit into bytes at SellRate.
type BuyerDeal struct {
	ID            int64
	DepositID     int64
	SatoshiAmount int64
	ByteAmount    int64
	Price         float64
	ExecutionDate *time.Time
	Unit          *string
	CreationDate  time.Time
}

// SellerDeal is an immediate fill of a bytes deposit into BTC at BuyRate.
type SellerDeal struct {
	ID            int64
	DepositID     int64
	ByteAmount    int64
	SatoshiAmount int64
	Price         float64
	ExecutionDate *time.Time
	Txid          *string
	CreationDate  time.Time
}

// Fill is the outcome of walking resting book depth against an instant
// request. Consumed IDs list orders the fill fully absorbed; Remainder
// describes the one order that was only partially absorbed, if any.
type Fill struct {
	TransactedSatoshis int64
	TransactedBytes    int64
	ConsumedOrderIDs   []int64
	Remainder          *PartialConsumption
}

// PartialConsumption records an order that was only partially absorbed.
type PartialConsumption struct {
	OrderID            int64
	TransactedSatoshis int64
	TransactedBytes    int64
}
