package bootstrap

import (
	"context"

	goredis "github.com/redis/go-redis/v9"

	"github.com/byteball/btc-exchange/internal/events"
	"github.com/byteball/btc-exchange/internal/gateway/bitcoin"
	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// Bootstrap wires the exchange together.
type Bootstrap struct {
	Repository Repository
	Gateway    Gateway
	Usecase    Usecase

	DB         postgresql.PostgreSQLClient
	Redis      goredis.Cmdable
	Locks      *keylock.Table
	Dispatcher *events.Dispatcher
	Logger     logger.Interface
	Config     *config.Config
}

// BootstrapConfig carries the externally constructed pieces.
type BootstrapConfig struct {
	DB      postgresql.PostgreSQLClient
	Redis   goredis.Cmdable
	Bitcoin bitcoin.BitcoinGateway
	Logger  logger.Interface
	Config  *config.Config
}

// Init initializes the bootstrap.
func (b *Bootstrap) Init(config BootstrapConfig) Bootstrap {
	b.DB = config.DB
	b.Redis = config.Redis
	b.Logger = config.Logger
	b.Config = config.Config
	b.Locks = keylock.New()
	b.Dispatcher = events.NewDispatcher()

	b.registerGateway(config.Bitcoin)
	b.registerRepository()
	b.registerUsecase()
	b.registerEvents()

	return *b
}

// registerEvents ties the components together through the dispatcher:
// every committed book change refreshes the instant quotes, drains matured
// payouts and republishes the top of book; every payout notifies the
// participant's alias.
func (b *Bootstrap) registerEvents() {
	b.Dispatcher.OnBookChanged(func(ctx context.Context) {
		b.Usecase.Instant.UpdateRates(ctx)
		b.Usecase.Settlement.SettleAll(ctx)
		b.publishTopOfBook(ctx)
	})
	b.Dispatcher.OnPayoutExecuted(b.Usecase.API.NotifyPayout)
}

func (b *Bootstrap) publishTopOfBook(ctx context.Context) {
	var bid, ask *float64

	buyer, err := b.Repository.Order.BestBuyer(ctx)
	if err != nil {
		b.Logger.ErrorContext(ctx, err)
		return
	}
	if buyer != nil {
		bid = &buyer.Price
	}

	seller, err := b.Repository.Order.BestSeller(ctx)
	if err != nil {
		b.Logger.ErrorContext(ctx, err)
		return
	}
	if seller != nil {
		ask = &seller.Price
	}

	if err := b.Gateway.Mirror.PublishTopOfBook(ctx, bid, ask); err != nil {
		b.Logger.ErrorContext(ctx, err)
	}
}
