package book

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byteball/btc-exchange/internal/events"
	"github.com/byteball/btc-exchange/internal/testutil"
	"github.com/byteball/btc-exchange/pkg/errors"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
)

type bookFixture struct {
	usecase    *Usecase
	orders     *testutil.FakeOrderRepo
	deposits   *testutil.FakeDepositRepo
	prices     *testutil.FakePriceRepo
	messenger  *testutil.FakeMessenger
	dispatcher *events.Dispatcher
	locks      *keylock.Table
}

func newBookFixture(t *testing.T) *bookFixture {
	t.Helper()
	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(t, err)

	f := &bookFixture{
		orders:     testutil.NewFakeOrderRepo(),
		deposits:   testutil.NewFakeDepositRepo(),
		prices:     testutil.NewFakePriceRepo(),
		messenger:  &testutil.FakeMessenger{},
		dispatcher: events.NewDispatcher(),
		locks:      keylock.New(),
	}
	f.usecase = NewUsecase(
		f.orders, f.deposits, f.prices,
		testutil.PassTxRunner{}, f.locks,
		f.messenger, f.dispatcher, log, 0.002,
	)
	return f
}

func TestInsertBuyerOrderTakesFee(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	depositID := f.deposits.AddBuyerDeposit(1_000_000)

	orderID, err := f.usecase.InsertBuyerOrder(ctx, depositID, "dev-buyer", 1_000_000, 0.04)
	require.NoError(t, err)
	require.NotZero(t, orderID)

	// 0.2% commission, the rest rests on the book.
	d := f.deposits.BuyerDeposits[depositID]
	require.NotNil(t, d.ConfirmationDate)
	assert.Equal(t, int64(2_000), *d.FeeSatoshiAmount)
	assert.Equal(t, int64(998_000), *d.NetSatoshiAmount)

	best, err := f.orders.BestBuyer(ctx)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, int64(998_000), best.SatoshiAmount)
	assert.Equal(t, 0.04, best.Price)

	assert.NotEmpty(t, f.messenger.TextsFor("dev-buyer"))
}

func TestInsertBuyerOrderConsumesDepositOnce(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	depositID := f.deposits.AddBuyerDeposit(1_000_000)

	_, err := f.usecase.InsertBuyerOrder(ctx, depositID, "dev-buyer", 1_000_000, 0.04)
	require.NoError(t, err)

	_, err = f.usecase.InsertBuyerOrder(ctx, depositID, "dev-buyer", 1_000_000, 0.04)
	require.Error(t, err)
	assert.True(t, errors.ErrorCodeEquals(err, string(errors.DuplicateAttempt)))
}

func TestInsertSellerOrderRejectsBadInputs(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	_, err := f.usecase.InsertSellerOrder(ctx, 1, "dev-seller", 0, 0.04)
	assert.Error(t, err)
	_, err = f.usecase.InsertSellerOrder(ctx, 1, "dev-seller", 1_000_000_000, -1)
	assert.Error(t, err)
}

func TestMatchFullCross(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	// Resting buy for 0.2 BTC at 0.05 BTC/GB, then a sell of exactly the
	// 4 GB it affords at the same price.
	buyerID, err := f.orders.InsertBuyer(ctx, 1, "dev-buyer", 20_000_000, 0.05)
	require.NoError(t, err)
	sellerID, err := f.orders.InsertSeller(ctx, 2, "dev-seller", 4_000_000_000, 0.05)
	require.NoError(t, err)

	require.NoError(t, f.usecase.Match(ctx))

	// Both sides fully consumed, nothing rests.
	best, err := f.orders.BestBuyer(ctx)
	require.NoError(t, err)
	assert.Nil(t, best)
	bestSell, err := f.orders.BestSeller(ctx)
	require.NoError(t, err)
	assert.Nil(t, bestSell)

	buyer := f.orders.Buyers[0]
	require.Equal(t, buyerID, buyer.ID)
	require.NotNil(t, buyer.MatchDate)
	assert.Equal(t, 0.05, *buyer.ExecutionPrice)
	assert.Equal(t, int64(20_000_000), *buyer.SoldSatoshiAmount)
	assert.Equal(t, int64(4_000_000_000), *buyer.ByteAmount)
	assert.Equal(t, sellerID, *buyer.OppositeOrderID)

	seller := f.orders.Sellers[0]
	require.NotNil(t, seller.MatchDate)
	assert.Equal(t, int64(4_000_000_000), *seller.SoldByteAmount)
	assert.Equal(t, int64(20_000_000), *seller.SatoshiAmount)
	assert.Equal(t, buyerID, *seller.OppositeOrderID)

	// Both participants were told.
	assert.NotEmpty(t, f.messenger.TextsFor("dev-buyer"))
	assert.NotEmpty(t, f.messenger.TextsFor("dev-seller"))
}

func TestMatchOlderOrderSetsThePrice(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	// The buyer arrived first, so the trade prints at the buyer's 0.06
	// even though the seller asked only 0.05.
	_, err := f.orders.InsertBuyer(ctx, 1, "dev-buyer", 600_000_000, 0.06)
	require.NoError(t, err)
	_, err = f.orders.InsertSeller(ctx, 2, "dev-seller", 100_000_000_000, 0.05)
	require.NoError(t, err)

	require.NoError(t, f.usecase.Match(ctx))

	buyer := f.orders.Buyers[0]
	require.NotNil(t, buyer.MatchDate)
	assert.Equal(t, 0.06, *buyer.ExecutionPrice)
	// 0.06 BTC at 0.06 BTC/GB buys exactly 100 GB.
	assert.Equal(t, int64(100_000_000_000), *buyer.ByteAmount)
	assert.Equal(t, int64(600_000_000), *buyer.SoldSatoshiAmount)
}

func TestMatchOlderSellerSetsThePriceAndBuyerKeepsRemainder(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	// Seller first at 0.05, buyer later at 0.06: the trade prints at
	// 0.05 and the buyer's leftover satoshis rest at the original price
	// with the original time priority.
	sellerID, err := f.orders.InsertSeller(ctx, 1, "dev-seller", 1_000_000_000, 0.05)
	require.NoError(t, err)
	buyerID, err := f.orders.InsertBuyer(ctx, 2, "dev-buyer", 6_000_000, 0.06)
	require.NoError(t, err)

	require.NoError(t, f.usecase.Match(ctx))

	seller := f.orders.Sellers[0]
	require.Equal(t, sellerID, seller.ID)
	require.NotNil(t, seller.MatchDate)
	assert.Equal(t, 0.05, *seller.ExecutionPrice)
	assert.Equal(t, int64(1_000_000_000), *seller.SoldByteAmount)
	// 1 GB at 0.05 BTC/GB is worth 0.05 BTC.
	assert.Equal(t, int64(5_000_000), *seller.SatoshiAmount)

	buyer := f.orders.Buyers[0]
	require.NotNil(t, buyer.MatchDate)
	assert.Equal(t, int64(5_000_000), *buyer.SoldSatoshiAmount)

	rest, err := f.orders.BestBuyer(ctx)
	require.NoError(t, err)
	require.NotNil(t, rest)
	assert.Equal(t, int64(1_000_000), rest.SatoshiAmount)
	assert.Equal(t, 0.06, rest.Price)
	require.NotNil(t, rest.PrevOrderID)
	assert.Equal(t, buyerID, *rest.PrevOrderID)
	assert.True(t, rest.LastUpdate.Equal(buyer.LastUpdate))
}

func TestMatchStopsWhenSidesDoNotOverlap(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	_, err := f.orders.InsertBuyer(ctx, 1, "dev-buyer", 1_000_000, 0.04)
	require.NoError(t, err)
	_, err = f.orders.InsertSeller(ctx, 2, "dev-seller", 1_000_000_000, 0.05)
	require.NoError(t, err)

	require.NoError(t, f.usecase.Match(ctx))

	buyers, err := f.orders.ActiveBuyers(ctx)
	require.NoError(t, err)
	sellers, err := f.orders.ActiveSellers(ctx)
	require.NoError(t, err)
	assert.Len(t, buyers, 1)
	assert.Len(t, sellers, 1)
	assert.Nil(t, buyers[0].MatchDate)
}

func TestMatchDrainsDepthAcrossSeveralOrders(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	// One big buyer sweeping two cheaper sellers and leaving the third.
	_, err := f.orders.InsertSeller(ctx, 1, "dev-s1", 1_000_000_000, 0.04)
	require.NoError(t, err)
	_, err = f.orders.InsertSeller(ctx, 2, "dev-s2", 1_000_000_000, 0.05)
	require.NoError(t, err)
	_, err = f.orders.InsertSeller(ctx, 3, "dev-s3", 1_000_000_000, 0.07)
	require.NoError(t, err)
	// 0.09 BTC buys 1 GB at 0.04 plus 1 GB at 0.05 exactly.
	_, err = f.orders.InsertBuyer(ctx, 4, "dev-buyer", 9_000_000, 0.06)
	require.NoError(t, err)

	require.NoError(t, f.usecase.Match(ctx))

	sellers, err := f.orders.ActiveSellers(ctx)
	require.NoError(t, err)
	require.Len(t, sellers, 1)
	assert.Equal(t, 0.07, sellers[0].Price)

	buyers, err := f.orders.ActiveBuyers(ctx)
	require.NoError(t, err)
	assert.Empty(t, buyers)
}

func TestUpdateBuyPriceRepricesAndRematches(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	var bookChanges int
	f.dispatcher.OnBookChanged(func(context.Context) { bookChanges++ })

	_, err := f.orders.InsertBuyer(ctx, 1, "dev-buyer", 500_000_000, 0.04)
	require.NoError(t, err)
	_, err = f.orders.InsertSeller(ctx, 2, "dev-seller", 1_000_000_000, 0.05)
	require.NoError(t, err)

	price := 0.05
	require.NoError(t, f.usecase.UpdateBuyPrice(ctx, "dev-buyer", &price))

	// The intent is stored and the repriced order crossed the resting
	// sell. Repricing drops time priority, so the seller's price prints.
	buy, _, err := f.prices.GetPrices(ctx, "dev-buyer")
	require.NoError(t, err)
	require.NotNil(t, buy)
	assert.Equal(t, 0.05, *buy)

	buyer := f.orders.Buyers[0]
	require.NotNil(t, buyer.MatchDate)
	assert.Equal(t, 0.05, *buyer.ExecutionPrice)
	assert.Equal(t, 1, bookChanges)
}

func TestUpdateBuyPriceNilClearsIntentOnly(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	price := 0.04
	require.NoError(t, f.prices.SetBuyPrice(ctx, "dev-buyer", &price))
	_, err := f.orders.InsertBuyer(ctx, 1, "dev-buyer", 1_000_000, 0.04)
	require.NoError(t, err)

	require.NoError(t, f.usecase.UpdateBuyPrice(ctx, "dev-buyer", nil))

	buy, _, err := f.prices.GetPrices(ctx, "dev-buyer")
	require.NoError(t, err)
	assert.Nil(t, buy)

	// The resting order is untouched.
	buyers, err := f.orders.ActiveBuyers(ctx)
	require.NoError(t, err)
	require.Len(t, buyers, 1)
	assert.Equal(t, 0.04, buyers[0].Price)
}

func TestUpdateSellPriceRejectsNonPositive(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	bad := -0.01
	assert.Error(t, f.usecase.UpdateSellPrice(ctx, "dev-seller", &bad))
}

func TestBookChangedListenersRunOutsideTheMatchLock(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	// Listeners may themselves need the book; the lock must already be
	// free when they run.
	lockWasFree := false
	f.dispatcher.OnBookChanged(func(context.Context) {
		if release, ok := f.locks.TryLock("match"); ok {
			lockWasFree = true
			release()
		}
	})

	require.NoError(t, f.usecase.MatchUnderLock(ctx))
	assert.True(t, lockWasFree)

	price := 0.04
	lockWasFree = false
	require.NoError(t, f.usecase.UpdateBuyPrice(ctx, "dev-buyer", &price))
	assert.True(t, lockWasFree)

	lockWasFree = false
	require.NoError(t, f.usecase.UpdateSellPrice(ctx, "dev-seller", &price))
	assert.True(t, lockWasFree)
}

func TestGetOrdersReturnsOnlyOwnActive(t *testing.T) {
	f := newBookFixture(t)
	ctx := context.Background()

	_, err := f.orders.InsertBuyer(ctx, 1, "dev-a", 1_000_000, 0.04)
	require.NoError(t, err)
	_, err = f.orders.InsertBuyer(ctx, 2, "dev-b", 1_000_000, 0.05)
	require.NoError(t, err)
	_, err = f.orders.InsertSeller(ctx, 3, "dev-a", 1_000_000_000, 0.06)
	require.NoError(t, err)

	buyers, sellers, err := f.usecase.GetOrders(ctx, "dev-a")
	require.NoError(t, err)
	require.Len(t, buyers, 1)
	require.Len(t, sellers, 1)
	assert.Equal(t, "dev-a", buyers[0].DeviceAddress)
}
