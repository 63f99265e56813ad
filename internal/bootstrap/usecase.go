package bootstrap

import (
	apiUc "github.com/byteball/btc-exchange/internal/usecase/api"
	bindingUc "github.com/byteball/btc-exchange/internal/usecase/binding"
	bookUc "github.com/byteball/btc-exchange/internal/usecase/book"
	depositUc "github.com/byteball/btc-exchange/internal/usecase/deposit"
	depositwatchUc "github.com/byteball/btc-exchange/internal/usecase/depositwatch"
	instantUc "github.com/byteball/btc-exchange/internal/usecase/instant"
	ledgerfeedUc "github.com/byteball/btc-exchange/internal/usecase/ledgerfeed"
	settlementUc "github.com/byteball/btc-exchange/internal/usecase/settlement"
	solvencyUc "github.com/byteball/btc-exchange/internal/usecase/solvency"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// Usecase holds the exchange usecases and long-running workers.
type Usecase struct {
	Book       *bookUc.Usecase
	Instant    *instantUc.Usecase
	Settlement *settlementUc.Usecase
	Deposit    *depositUc.Usecase
	Binding    *bindingUc.Usecase
	Solvency   *solvencyUc.Usecase
	API        *apiUc.Usecase

	DepositWatcher  *depositwatchUc.Watcher
	LedgerFeed      *ledgerfeedUc.Consumer
	CommandConsumer *apiUc.Consumer
}

// registerUsecase registers the usecases.
func (b *Bootstrap) registerUsecase() {
	tx := postgresql.NewRunner(b.DB)

	b.Usecase.Book = bookUc.NewUsecase(
		b.Repository.Order,
		b.Repository.Deposit,
		b.Repository.Price,
		tx,
		b.Locks,
		b.Gateway.Messenger,
		b.Dispatcher,
		b.Logger,
		b.Config.Exchange.Fee,
	)

	b.Usecase.Instant = instantUc.NewUsecase(
		b.Repository.Order,
		b.Repository.InstantDeal,
		b.Repository.Deposit,
		b.Usecase.Book,
		b.Gateway.Messenger,
		b.Gateway.Notifier,
		b.Gateway.Mirror,
		b.Logger,
		b.Config.Exchange,
	)

	b.Usecase.Settlement = settlementUc.NewUsecase(
		b.Repository.Order,
		b.Repository.InstantDeal,
		tx,
		b.Locks,
		b.Gateway.Bitcoin,
		b.Gateway.Wallet,
		b.Gateway.Messenger,
		b.Gateway.Notifier,
		b.Dispatcher,
		b.Logger,
	)

	b.Usecase.Deposit = depositUc.NewUsecase(
		b.Repository.Deposit,
		b.Usecase.Book,
		b.Usecase.Instant,
		tx,
		b.Locks,
		b.Gateway.Messenger,
		b.Dispatcher,
		b.Logger,
		b.Config.Exchange,
	)

	b.Usecase.Binding = bindingUc.NewUsecase(
		b.Repository.Binding,
		b.Gateway.Bitcoin,
		b.Gateway.Wallet,
		b.Locks,
		b.Logger,
	)

	b.Usecase.Solvency = solvencyUc.NewUsecase(
		b.Repository.Order,
		b.Gateway.Bitcoin,
		b.Gateway.Wallet,
		b.Gateway.Notifier,
		b.Logger,
		b.Config.Exchange,
	)

	b.Usecase.API = apiUc.NewUsecase(
		b.Repository.Alias,
		b.Usecase.Book,
		b.Gateway.Messenger,
		b.Logger,
	)

	b.Usecase.DepositWatcher = depositwatchUc.NewWatcher(
		b.Gateway.Bitcoin,
		b.Repository.Binding,
		b.Repository.Deposit,
		b.Repository.Cursor,
		b.Usecase.Deposit,
		b.Locks,
		b.Gateway.Messenger,
		b.Logger,
		b.Config.Exchange,
	)

	b.Usecase.LedgerFeed = ledgerfeedUc.NewConsumer(
		b.Config.Kafka,
		b.Repository.Binding,
		b.Repository.Deposit,
		b.Usecase.Deposit,
		b.Locks,
		b.Gateway.Messenger,
		b.Logger,
	)

	b.Usecase.CommandConsumer = apiUc.NewConsumer(
		b.Config.Kafka,
		b.Usecase.API,
		b.Logger,
	)
}
