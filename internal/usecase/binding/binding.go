package binding

import (
	"context"

	bindingv1 "github.com/byteball/btc-exchange/internal/domain/binding/v1"
	"github.com/byteball/btc-exchange/internal/gateway/bitcoin"
	"github.com/byteball/btc-exchange/internal/gateway/wallet"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/binding"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
)

const (
	newBitcoinAddressLock  = "new_bitcoin_address"
	newByteballAddressLock = "new_byteball_address"
)

// Usecase hands out deposit addresses. Each (participant, payout address)
// pair gets exactly one deposit address, issued once and reused on every
// later request.
type Usecase struct {
	bindings binding.BindingRepository
	btc      bitcoin.BitcoinGateway
	wallet   wallet.WalletGateway
	locks    *keylock.Table
	logger   logger.Interface
}

// NewUsecase creates the binding usecase.
func NewUsecase(
	bindings binding.BindingRepository,
	btc bitcoin.BitcoinGateway,
	wallet wallet.WalletGateway,
	locks *keylock.Table,
	logger logger.Interface,
) *Usecase {
	return &Usecase{
		bindings: bindings,
		btc:      btc,
		wallet:   wallet,
		locks:    locks,
		logger:   logger,
	}
}

// AssignBuyerBinding returns the BTC deposit address bound to the
// participant's byteball payout address, issuing a fresh one on first use.
// Serialized per participant and per address issuance so concurrent
// requests cannot bind two addresses to the same pair.
func (u *Usecase) AssignBuyerBinding(ctx context.Context, deviceAddress, outByteballAddress string) (*bindingv1.BuyerBinding, error) {
	releaseDevice, err := u.locks.Lock(ctx, deviceAddress)
	if err != nil {
		return nil, err
	}
	defer releaseDevice()

	existing, err := u.bindings.GetBuyerBinding(ctx, deviceAddress, outByteballAddress)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	releaseIssue, err := u.locks.Lock(ctx, newBitcoinAddressLock)
	if err != nil {
		return nil, err
	}
	defer releaseIssue()

	toBitcoinAddress, err := u.btc.NewReceivingAddress(ctx)
	if err != nil {
		return nil, err
	}
	id, err := u.bindings.InsertBuyerBinding(ctx, deviceAddress, outByteballAddress, toBitcoinAddress)
	if err != nil {
		return nil, err
	}

	u.logger.InfoContext(ctx, "assigned buyer binding",
		logger.Field{Key: "device_address", Value: deviceAddress},
		logger.Field{Key: "to_bitcoin_address", Value: toBitcoinAddress},
	)
	return &bindingv1.BuyerBinding{
		ID:                 id,
		DeviceAddress:      deviceAddress,
		OutByteballAddress: outByteballAddress,
		ToBitcoinAddress:   toBitcoinAddress,
	}, nil
}

// AssignSellerBinding returns the byteball deposit address bound to the
// participant's bitcoin payout address, issuing a fresh one on first use.
func (u *Usecase) AssignSellerBinding(ctx context.Context, deviceAddress, outBitcoinAddress string) (*bindingv1.SellerBinding, error) {
	releaseDevice, err := u.locks.Lock(ctx, deviceAddress)
	if err != nil {
		return nil, err
	}
	defer releaseDevice()

	existing, err := u.bindings.GetSellerBinding(ctx, deviceAddress, outBitcoinAddress)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	releaseIssue, err := u.locks.Lock(ctx, newByteballAddressLock)
	if err != nil {
		return nil, err
	}
	defer releaseIssue()

	toByteballAddress, err := u.wallet.NewReceivingAddress(ctx)
	if err != nil {
		return nil, err
	}
	id, err := u.bindings.InsertSellerBinding(ctx, deviceAddress, outBitcoinAddress, toByteballAddress)
	if err != nil {
		return nil, err
	}

	u.logger.InfoContext(ctx, "assigned seller binding",
		logger.Field{Key: "device_address", Value: deviceAddress},
		logger.Field{Key: "to_byteball_address", Value: toByteballAddress},
	)
	return &bindingv1.SellerBinding{
		ID:                id,
		DeviceAddress:     deviceAddress,
		OutBitcoinAddress: outBitcoinAddress,
		ToByteballAddress: toByteballAddress,
	}, nil
}
