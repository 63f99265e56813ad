package bootstrap

import (
	aliasInfra "github.com/byteball/btc-exchange/internal/infrastructure/postgres/alias"
	bindingInfra "github.com/byteball/btc-exchange/internal/infrastructure/postgres/binding"
	cursorInfra "github.com/byteball/btc-exchange/internal/infrastructure/postgres/cursor"
	depositInfra "github.com/byteball/btc-exchange/internal/infrastructure/postgres/deposit"
	instantdealInfra "github.com/byteball/btc-exchange/internal/infrastructure/postgres/instantdeal"
	orderInfra "github.com/byteball/btc-exchange/internal/infrastructure/postgres/order"
	priceInfra "github.com/byteball/btc-exchange/internal/infrastructure/postgres/price"
)

// Repository holds the store repositories.
type Repository struct {
	Order       orderInfra.OrderRepository
	Deposit     depositInfra.DepositRepository
	InstantDeal instantdealInfra.InstantDealRepository
	Binding     bindingInfra.BindingRepository
	Price       priceInfra.PriceRepository
	Cursor      cursorInfra.CursorRepository
	Alias       aliasInfra.AliasRepository
}

// registerRepository registers the repositories.
func (b *Bootstrap) registerRepository() {
	b.Repository.Order = orderInfra.NewRepository(b.DB)
	b.Repository.Deposit = depositInfra.NewRepository(b.DB)
	b.Repository.InstantDeal = instantdealInfra.NewRepository(b.DB)
	b.Repository.Binding = bindingInfra.NewRepository(b.DB)
	b.Repository.Price = priceInfra.NewRepository(b.DB)
	b.Repository.Cursor = cursorInfra.NewRepository(b.DB)
	b.Repository.Alias = aliasInfra.NewRepository(b.DB)
}
