package depositwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/byteball/btc-exchange/internal/gateway/bitcoin"
	"github.com/byteball/btc-exchange/internal/gateway/messaging"
	bindingrepo "github.com/byteball/btc-exchange/internal/infrastructure/postgres/binding"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/cursor"
	depositrepo "github.com/byteball/btc-exchange/internal/infrastructure/postgres/deposit"
	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
)

// rescanLock keeps overlapping rescans from double-counting deposits.
const rescanLock = "btc2bytes"

// RipeDispatcher routes deposits that became tradable during the rescan.
type RipeDispatcher interface {
	ProcessRipeBuyerDeposits(ctx context.Context) error
}

// Watcher polls the bitcoin wallet for inbound deposits. Each pass resumes
// from the stored block cursor, upserts everything received since, and
// dispatches deposits that reached the confirmation threshold.
type Watcher struct {
	btc        bitcoin.BitcoinGateway
	bindings   bindingrepo.BindingRepository
	deposits   depositrepo.DepositRepository
	cursor     cursor.CursorRepository
	dispatcher RipeDispatcher
	locks      *keylock.Table
	messenger  messaging.DeviceMessenger
	logger     logger.Interface
	cfg        config.ExchangeConfig
}

// NewWatcher creates the rescan watcher.
func NewWatcher(
	btc bitcoin.BitcoinGateway,
	bindings bindingrepo.BindingRepository,
	deposits depositrepo.DepositRepository,
	cursor cursor.CursorRepository,
	dispatcher RipeDispatcher,
	locks *keylock.Table,
	messenger messaging.DeviceMessenger,
	logger logger.Interface,
	cfg config.ExchangeConfig,
) *Watcher {
	return &Watcher{
		btc:        btc,
		bindings:   bindings,
		deposits:   deposits,
		cursor:     cursor,
		dispatcher: dispatcher,
		locks:      locks,
		messenger:  messenger,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run polls until the context is canceled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Rescan(ctx)
		}
	}
}

// Rescan runs one pass. If a previous pass is still running it returns
// immediately rather than queueing behind it.
func (w *Watcher) Rescan(ctx context.Context) {
	release, ok := w.locks.TryLock(rescanLock)
	if !ok {
		return
	}
	defer release()

	if err := w.rescan(ctx); err != nil {
		w.logger.ErrorContext(ctx, err)
	}
}

func (w *Watcher) rescan(ctx context.Context) error {
	lastBlock, err := w.cursor.LastBlock(ctx)
	if err != nil {
		return err
	}

	received, newLastBlock, err := w.btc.ListSince(ctx, lastBlock)
	if err != nil {
		return err
	}

	for _, rx := range received {
		binding, err := w.bindings.BuyerBindingByBitcoinAddress(ctx, rx.Address)
		if err != nil {
			return err
		}
		if binding == nil {
			continue
		}

		depositID, inserted, err := w.deposits.UpsertBuyerDeposit(ctx, binding.ID, rx.Txid, rx.SatoshiAmount, rx.Confirmations)
		if err != nil {
			return err
		}
		if inserted && rx.Confirmations < w.cfg.MinConfirmations {
			w.logger.InfoContext(ctx, "new bitcoin deposit",
				logger.Field{Key: "deposit_id", Value: depositID},
				logger.Field{Key: "txid", Value: rx.Txid},
				logger.Field{Key: "satoshis", Value: rx.SatoshiAmount},
			)
			if err := w.messenger.SendText(ctx, binding.DeviceAddress, fmt.Sprintf(
				"Received your payment of %d satoshis, waiting for %d confirmations.",
				rx.SatoshiAmount, w.cfg.MinConfirmations)); err != nil {
				w.logger.ErrorContext(ctx, err,
					logger.Field{Key: "device_address", Value: binding.DeviceAddress})
			}
		}
	}

	if newLastBlock != "" && newLastBlock != lastBlock {
		if err := w.cursor.SetLastBlock(ctx, newLastBlock); err != nil {
			return err
		}
	}

	return w.dispatcher.ProcessRipeBuyerDeposits(ctx)
}
