package settlement

import (
	"context"
	"fmt"

	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
	"github.com/byteball/btc-exchange/internal/events"
	"github.com/byteball/btc-exchange/internal/gateway/bitcoin"
	"github.com/byteball/btc-exchange/internal/gateway/mail"
	"github.com/byteball/btc-exchange/internal/gateway/messaging"
	"github.com/byteball/btc-exchange/internal/gateway/wallet"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/instantdeal"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/order"
	"github.com/byteball/btc-exchange/pkg/errors"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

const (
	settleBTCLock   = "settle_btc"
	settleBytesLock = "settle_bytes"

	// dustReference is stamped instead of a txid or unit when the rail
	// rejects the payout as below its minimum. Terminal, never retried.
	dustReference = "too small"
)

// Usecase drains matured payout obligations onto their rails. The
// execution marker is inserted in the same transaction that records the
// payout result and before the external call, so a crash or retry can
// never pay the same obligation twice.
type Usecase struct {
	orders     order.OrderRepository
	deals      instantdeal.InstantDealRepository
	tx         postgresql.TxRunner
	locks      *keylock.Table
	btc        bitcoin.BitcoinGateway
	wallet     wallet.WalletGateway
	messenger  messaging.DeviceMessenger
	notifier   mail.OperatorNotifier
	dispatcher *events.Dispatcher
	logger     logger.Interface
}

// NewUsecase creates the settlement usecase.
func NewUsecase(
	orders order.OrderRepository,
	deals instantdeal.InstantDealRepository,
	tx postgresql.TxRunner,
	locks *keylock.Table,
	btc bitcoin.BitcoinGateway,
	wallet wallet.WalletGateway,
	messenger messaging.DeviceMessenger,
	notifier mail.OperatorNotifier,
	dispatcher *events.Dispatcher,
	logger logger.Interface,
) *Usecase {
	return &Usecase{
		orders:     orders,
		deals:      deals,
		tx:         tx,
		locks:      locks,
		btc:        btc,
		wallet:     wallet,
		messenger:  messenger,
		notifier:   notifier,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// SettleAll runs all four sweeps.
func (u *Usecase) SettleAll(ctx context.Context) {
	u.SettleBookBytes(ctx)
	u.SettleInstantBytes(ctx)
	u.SettleBookBTC(ctx)
	u.SettleInstantBTC(ctx)
}

// SettleBookBytes pays out bytes owed to matched buy orders.
func (u *Usecase) SettleBookBytes(ctx context.Context) {
	u.sweep(ctx, settleBytesLock, u.orders.PendingBuyerPayouts)
}

// SettleInstantBytes pays out bytes owed to buyer instant deals.
func (u *Usecase) SettleInstantBytes(ctx context.Context) {
	u.sweep(ctx, settleBytesLock, u.deals.PendingBuyerDealPayouts)
}

// SettleBookBTC pays out satoshis owed to matched sell orders.
func (u *Usecase) SettleBookBTC(ctx context.Context) {
	u.sweep(ctx, settleBTCLock, u.orders.PendingSellerPayouts)
}

// SettleInstantBTC pays out satoshis owed to seller instant deals.
func (u *Usecase) SettleInstantBTC(ctx context.Context) {
	u.sweep(ctx, settleBTCLock, u.deals.PendingSellerDealPayouts)
}

func (u *Usecase) sweep(ctx context.Context, lockName string, pending func(context.Context) ([]settlementv1.Obligation, error)) {
	release, err := u.locks.Lock(ctx, lockName)
	if err != nil {
		u.logger.ErrorContext(ctx, err, logger.Field{Key: "lock", Value: lockName})
		return
	}
	defer release()

	obligations, err := pending(ctx)
	if err != nil {
		u.logger.ErrorContext(ctx, err, logger.Field{Key: "lock", Value: lockName})
		return
	}

	for _, obligation := range obligations {
		if err := u.settle(ctx, obligation); err != nil {
			// A failed payout keeps the obligation pending; the next
			// sweep retries it after the operator has been alerted.
			u.logger.ErrorContext(ctx, err,
				logger.Field{Key: "kind", Value: string(obligation.Kind)},
				logger.Field{Key: "source_id", Value: obligation.SourceID},
			)
			u.notifier.NotifyOperator(
				fmt.Sprintf("payout failure (%s)", obligation.Kind),
				fmt.Sprintf("failed to pay %d to %s for %s %d: %v",
					obligation.Amount, obligation.ToAddress, obligation.Kind, obligation.SourceID, err))
		}
	}
}

// settle pays one obligation. The transaction inserts the attempt marker,
// performs the external call, and records the result; any rail failure
// rolls the marker back so the obligation is retried later. Dust
// rejections are stamped as executed with the dust reference and complete
// normally from there.
func (u *Usecase) settle(ctx context.Context, obligation settlementv1.Obligation) error {
	var paidReference string
	attempted := false

	err := u.tx.InTransaction(ctx, func(ctx context.Context) error {
		inserted, err := u.insertMarker(ctx, obligation)
		if err != nil {
			return err
		}
		if !inserted {
			// A marker with no recorded result means an earlier attempt
			// died between the external call and the commit. Whether the
			// money left is unknown; never pay again automatically.
			return nil
		}
		attempted = true

		reference, err := u.pay(ctx, obligation)
		if err != nil {
			if errors.ErrorCodeEquals(err, string(errors.DustPayment)) {
				paidReference = dustReference
				return u.stamp(ctx, obligation, dustReference)
			}
			return err
		}
		paidReference = reference
		return u.stamp(ctx, obligation, reference)
	})
	if err != nil {
		return err
	}
	if !attempted {
		u.logger.WarnContext(ctx, "skipping obligation with existing execution marker",
			logger.Field{Key: "kind", Value: string(obligation.Kind)},
			logger.Field{Key: "source_id", Value: obligation.SourceID},
		)
		return nil
	}

	u.logger.InfoContext(ctx, "paid obligation",
		logger.Field{Key: "kind", Value: string(obligation.Kind)},
		logger.Field{Key: "source_id", Value: obligation.SourceID},
		logger.Field{Key: "amount", Value: obligation.Amount},
		logger.Field{Key: "reference", Value: paidReference},
	)

	// Dust rejections go through the same completion path as real
	// payouts; the counterpart sees the sentinel in place of a reference.
	u.notifyPaid(ctx, obligation, paidReference)
	u.dispatcher.EmitPayoutExecuted(ctx, obligation, paidReference)
	return nil
}

func (u *Usecase) insertMarker(ctx context.Context, obligation settlementv1.Obligation) (bool, error) {
	switch obligation.Kind {
	case settlementv1.KindBookBytes:
		return u.orders.InsertBuyerExecution(ctx, obligation.SourceID)
	case settlementv1.KindBookBTC:
		return u.orders.InsertSellerExecution(ctx, obligation.SourceID)
	case settlementv1.KindInstantBytes:
		return u.deals.InsertBuyerDealExecution(ctx, obligation.SourceID)
	case settlementv1.KindInstantBTC:
		return u.deals.InsertSellerDealExecution(ctx, obligation.SourceID)
	}
	return false, errors.NewErrorDetails("unknown obligation kind", string(errors.GeneralInternalServerError), "kind")
}

func (u *Usecase) pay(ctx context.Context, obligation settlementv1.Obligation) (string, error) {
	if obligation.BytesObligation() {
		return u.wallet.IssuePayment(ctx, obligation.ToAddress, obligation.Amount)
	}
	return u.btc.SendPayment(ctx, obligation.ToAddress, obligation.Amount)
}

func (u *Usecase) stamp(ctx context.Context, obligation settlementv1.Obligation, reference string) error {
	switch obligation.Kind {
	case settlementv1.KindBookBytes:
		return u.orders.StampBuyerExecuted(ctx, obligation.SourceID, reference)
	case settlementv1.KindBookBTC:
		return u.orders.StampSellerExecuted(ctx, obligation.SourceID, reference)
	case settlementv1.KindInstantBytes:
		return u.deals.StampBuyerDealExecuted(ctx, obligation.SourceID, reference)
	case settlementv1.KindInstantBTC:
		return u.deals.StampSellerDealExecuted(ctx, obligation.SourceID, reference)
	}
	return errors.NewErrorDetails("unknown obligation kind", string(errors.GeneralInternalServerError), "kind")
}

func (u *Usecase) notifyPaid(ctx context.Context, obligation settlementv1.Obligation, reference string) {
	var text string
	if obligation.BytesObligation() {
		text = fmt.Sprintf("Sent you %d bytes, unit %s.", obligation.Amount, reference)
	} else {
		text = fmt.Sprintf("Sent you %d satoshis, txid %s.", obligation.Amount, reference)
	}
	if err := u.messenger.SendText(ctx, obligation.DeviceAddress, text); err != nil {
		u.logger.ErrorContext(ctx, err,
			logger.Field{Key: "device_address", Value: obligation.DeviceAddress})
	}
}
