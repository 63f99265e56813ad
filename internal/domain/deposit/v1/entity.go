package depositv1

import "time"

// BuyerDeposit is an inbound BTC payment to a buyer binding address.
type BuyerDeposit struct {
	ID                 int64
	BindingID          int64
	Txid               string
	SatoshiAmount      int64
	FeeSatoshiAmount   *int64
	NetSatoshiAmount   *int64
	CountConfirmations int
	ConfirmationDate   *time.Time
}

// SellerDeposit is an inbound bytes payment to a seller binding address.
type SellerDeposit struct {
	ID            int64
	BindingID     int64
	Unit          string
	ByteAmount    int64
	FeeByteAmount *int64
	NetByteAmount *int64
	IsStable      bool
	FinalityDate  *time.Time
}

// PendingBuyerDeposit is a confirmed-enough buyer deposit joined with its
// binding and the participant's current price intent.
type PendingBuyerDeposit struct {
	DepositID          int64
	SatoshiAmount      int64
	OutByteballAddress string
	DeviceAddress      string
	ConfirmationDate   *time.Time
	BuyPrice           *float64
}

// PendingSellerDeposit is a stable seller deposit joined with its binding
// and the participant's current price intent.
type PendingSellerDeposit struct {
	DepositID         int64
	ByteAmount        int64
	OutBitcoinAddress string
	DeviceAddress     string
	FinalityDate      *time.Time
	SellPrice         *float64
}
