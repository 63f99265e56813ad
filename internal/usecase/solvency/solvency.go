package solvency

import (
	"context"
	"fmt"
	"time"

	"github.com/byteball/btc-exchange/internal/gateway/bitcoin"
	"github.com/byteball/btc-exchange/internal/gateway/mail"
	"github.com/byteball/btc-exchange/internal/gateway/wallet"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/order"
	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/logger"
)

// Usecase periodically compares what the exchange owes on each rail with
// what its wallets actually hold and alerts the operator on any shortfall.
type Usecase struct {
	orders   order.OrderRepository
	btc      bitcoin.BitcoinGateway
	wallet   wallet.WalletGateway
	notifier mail.OperatorNotifier
	logger   logger.Interface
	cfg      config.ExchangeConfig
}

// NewUsecase creates the solvency checker.
func NewUsecase(
	orders order.OrderRepository,
	btc bitcoin.BitcoinGateway,
	wallet wallet.WalletGateway,
	notifier mail.OperatorNotifier,
	logger logger.Interface,
	cfg config.ExchangeConfig,
) *Usecase {
	return &Usecase{
		orders:   orders,
		btc:      btc,
		wallet:   wallet,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// Run checks until the context is canceled.
func (u *Usecase) Run(ctx context.Context) {
	ticker := time.NewTicker(u.cfg.SolvencyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.Check(ctx); err != nil {
				u.logger.ErrorContext(ctx, err)
			}
		}
	}
}

// Check runs one solvency pass over both rails.
func (u *Usecase) Check(ctx context.Context) error {
	owedSatoshis, err := u.orders.OwedSatoshis(ctx)
	if err != nil {
		return err
	}
	btcBalance, err := u.btc.Balance(ctx)
	if err != nil {
		return err
	}
	if btcBalance < owedSatoshis {
		u.notifier.NotifyOperator("bitcoin balance below obligations",
			fmt.Sprintf("wallet holds %d satoshis but %d are owed", btcBalance, owedSatoshis))
	}

	owedBytes, err := u.orders.OwedBytes(ctx)
	if err != nil {
		return err
	}
	byteBalance, err := u.wallet.Balance(ctx)
	if err != nil {
		return err
	}
	if byteBalance < owedBytes {
		u.notifier.NotifyOperator("byte balance below obligations",
			fmt.Sprintf("wallet holds %d bytes but %d are owed", byteBalance, owedBytes))
	}

	u.logger.DebugContext(ctx, "solvency check",
		logger.Field{Key: "owed_satoshis", Value: owedSatoshis},
		logger.Field{Key: "btc_balance", Value: btcBalance},
		logger.Field{Key: "owed_bytes", Value: owedBytes},
		logger.Field{Key: "byte_balance", Value: byteBalance},
	)
	return nil
}
