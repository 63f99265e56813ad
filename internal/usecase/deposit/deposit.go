package deposit

import (
	"context"
	"fmt"

	depositv1 "github.com/byteball/btc-exchange/internal/domain/deposit/v1"
	"github.com/byteball/btc-exchange/internal/events"
	"github.com/byteball/btc-exchange/internal/gateway/messaging"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/deposit"
	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

const matchLock = "match"

// BookHandler is the slice of the book usecase the dispatcher needs for
// priced deposits.
type BookHandler interface {
	InsertBuyerOrder(ctx context.Context, depositID int64, deviceAddress string, satoshiAmount int64, orderPrice float64) (int64, error)
	InsertSellerOrder(ctx context.Context, depositID int64, deviceAddress string, byteAmount int64, orderPrice float64) (int64, error)
	Match(ctx context.Context) error
}

// InstantHandler is the slice of the instant engine used for unpriced
// deposits.
type InstantHandler interface {
	HandleInstantBuyOrder(ctx context.Context, depositID int64, satoshiAmount int64, deviceAddress string) error
	HandleInstantSellOrder(ctx context.Context, depositID int64, byteAmount int64, deviceAddress string) error
}

// Usecase routes matured deposits. A deposit with a standing price intent
// becomes a resting order; one without goes through the instant engine;
// one below the rail minimum is kept as a donation.
type Usecase struct {
	deposits   deposit.DepositRepository
	book       BookHandler
	instant    InstantHandler
	tx         postgresql.TxRunner
	locks      *keylock.Table
	messenger  messaging.DeviceMessenger
	dispatcher *events.Dispatcher
	logger     logger.Interface
	cfg        config.ExchangeConfig
}

// NewUsecase creates the deposit dispatcher.
func NewUsecase(
	deposits deposit.DepositRepository,
	book BookHandler,
	instant InstantHandler,
	tx postgresql.TxRunner,
	locks *keylock.Table,
	messenger messaging.DeviceMessenger,
	dispatcher *events.Dispatcher,
	logger logger.Interface,
	cfg config.ExchangeConfig,
) *Usecase {
	return &Usecase{
		deposits:   deposits,
		book:       book,
		instant:    instant,
		tx:         tx,
		locks:      locks,
		messenger:  messenger,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// ProcessRipeBuyerDeposits dispatches every confirmed BTC deposit that has
// not traded yet.
func (u *Usecase) ProcessRipeBuyerDeposits(ctx context.Context) error {
	deposits, err := u.deposits.RipeBuyerDeposits(ctx, u.cfg.MinConfirmations)
	if err != nil {
		return err
	}
	if len(deposits) == 0 {
		return nil
	}

	release, err := u.locks.Lock(ctx, matchLock)
	if err != nil {
		return err
	}

	var handled int
	for _, d := range deposits {
		if err := u.tx.InTransaction(ctx, func(ctx context.Context) error {
			return u.handleBuyerDeposit(ctx, d)
		}); err != nil {
			u.logger.ErrorContext(ctx, err,
				logger.Field{Key: "deposit_id", Value: d.DepositID})
			continue
		}
		handled++
	}
	release()

	if handled > 0 {
		u.dispatcher.EmitBookChanged(ctx)
	}
	return nil
}

func (u *Usecase) handleBuyerDeposit(ctx context.Context, d depositv1.PendingBuyerDeposit) error {
	if d.SatoshiAmount < u.cfg.MinSatoshis {
		// Too small to exchange; the whole amount is booked as fee.
		if err := u.deposits.FinishBuyerDeposit(ctx, d.DepositID, d.SatoshiAmount, 0); err != nil {
			return err
		}
		u.notify(ctx, d.DeviceAddress, fmt.Sprintf(
			"Received %d satoshis which is less than the minimum of %d.  The payment is considered a donation, thank you!",
			d.SatoshiAmount, u.cfg.MinSatoshis))
		return nil
	}

	if d.BuyPrice != nil {
		if _, err := u.book.InsertBuyerOrder(ctx, d.DepositID, d.DeviceAddress, d.SatoshiAmount, *d.BuyPrice); err != nil {
			return err
		}
		return u.book.Match(ctx)
	}
	return u.instant.HandleInstantBuyOrder(ctx, d.DepositID, d.SatoshiAmount, d.DeviceAddress)
}

// ProcessRipeSellerDeposits dispatches every final bytes deposit that has
// not traded yet.
func (u *Usecase) ProcessRipeSellerDeposits(ctx context.Context) error {
	deposits, err := u.deposits.RipeSellerDeposits(ctx)
	if err != nil {
		return err
	}
	if len(deposits) == 0 {
		return nil
	}

	release, err := u.locks.Lock(ctx, matchLock)
	if err != nil {
		return err
	}

	var handled int
	for _, d := range deposits {
		if err := u.tx.InTransaction(ctx, func(ctx context.Context) error {
			return u.handleSellerDeposit(ctx, d)
		}); err != nil {
			u.logger.ErrorContext(ctx, err,
				logger.Field{Key: "deposit_id", Value: d.DepositID})
			continue
		}
		handled++
	}
	release()

	if handled > 0 {
		u.dispatcher.EmitBookChanged(ctx)
	}
	return nil
}

func (u *Usecase) handleSellerDeposit(ctx context.Context, d depositv1.PendingSellerDeposit) error {
	if d.ByteAmount < u.cfg.MinBytes {
		if err := u.deposits.FinishSellerDeposit(ctx, d.DepositID, d.ByteAmount, 0); err != nil {
			return err
		}
		u.notify(ctx, d.DeviceAddress, fmt.Sprintf(
			"Received %d bytes which is less than the minimum of %d.  The payment is considered a donation, thank you!",
			d.ByteAmount, u.cfg.MinBytes))
		return nil
	}

	if d.SellPrice != nil {
		if _, err := u.book.InsertSellerOrder(ctx, d.DepositID, d.DeviceAddress, d.ByteAmount, *d.SellPrice); err != nil {
			return err
		}
		return u.book.Match(ctx)
	}
	return u.instant.HandleInstantSellOrder(ctx, d.DepositID, d.ByteAmount, d.DeviceAddress)
}

func (u *Usecase) notify(ctx context.Context, deviceAddress, text string) {
	if err := u.messenger.SendText(ctx, deviceAddress, text); err != nil {
		u.logger.ErrorContext(ctx, err,
			logger.Field{Key: "device_address", Value: deviceAddress})
	}
}
