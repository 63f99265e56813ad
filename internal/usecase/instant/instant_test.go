package instant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderv1 "github.com/byteball/btc-exchange/internal/domain/order/v1"
	"github.com/byteball/btc-exchange/internal/testutil"
	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/errors"
	"github.com/byteball/btc-exchange/pkg/logger"
)

type instantFixture struct {
	usecase   *Usecase
	orders    *testutil.FakeOrderRepo
	deals     *testutil.FakeInstantDealRepo
	deposits  *testutil.FakeDepositRepo
	book      *recordingBook
	messenger *testutil.FakeMessenger
	notifier  *testutil.FakeNotifier
	mirror    *testutil.FakeMirror
}

// recordingBook captures deposits parked as resting orders on a
// liquidity shortfall.
type recordingBook struct {
	buyOrders  []parkedOrder
	sellOrders []parkedOrder
}

type parkedOrder struct {
	DepositID int64
	Amount    int64
	Price     float64
}

func (b *recordingBook) InsertBuyerOrder(ctx context.Context, depositID int64, deviceAddress string, satoshiAmount int64, orderPrice float64) (int64, error) {
	b.buyOrders = append(b.buyOrders, parkedOrder{DepositID: depositID, Amount: satoshiAmount, Price: orderPrice})
	return int64(len(b.buyOrders)), nil
}

func (b *recordingBook) InsertSellerOrder(ctx context.Context, depositID int64, deviceAddress string, byteAmount int64, orderPrice float64) (int64, error) {
	b.sellOrders = append(b.sellOrders, parkedOrder{DepositID: depositID, Amount: byteAmount, Price: orderPrice})
	return int64(len(b.sellOrders)), nil
}

func testExchangeConfig() config.ExchangeConfig {
	return config.ExchangeConfig{
		Fee:           0.002,
		InstantMargin: 0.02,
		MaxBTC:        0.2,
		MaxGB:         10,
		SafeBuyRate:   0.04,
		SafeSellRate:  0.01,
		RateTick:      0.0001,
	}
}

func newInstantFixture(t *testing.T) *instantFixture {
	t.Helper()
	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(t, err)

	f := &instantFixture{
		orders:    testutil.NewFakeOrderRepo(),
		deals:     testutil.NewFakeInstantDealRepo(),
		deposits:  testutil.NewFakeDepositRepo(),
		book:      &recordingBook{},
		messenger: &testutil.FakeMessenger{},
		notifier:  &testutil.FakeNotifier{},
		mirror:    &testutil.FakeMirror{},
	}
	f.usecase = NewUsecase(
		f.orders, f.deals, f.deposits, f.book,
		f.messenger, f.notifier, f.mirror, log, testExchangeConfig(),
	)
	return f
}

func TestInitialRatesAreTheSafeRates(t *testing.T) {
	f := newInstantFixture(t)

	r := f.usecase.Rates()
	assert.Equal(t, 0.04, *r.BuyRate)
	assert.Equal(t, 0.01, *r.SellRate)
}

func TestUpdateRatesQuotesOffTheMarginalPrice(t *testing.T) {
	f := newInstantFixture(t)
	ctx := context.Background()

	// 6 GB at 0.03 plus 6 GB at 0.032 crosses the 10 GB threshold at
	// 0.032; the customer buy rate carries the 2% margin on top.
	_, err := f.orders.InsertSeller(ctx, 1, "dev-s1", 6_000_000_000, 0.03)
	require.NoError(t, err)
	_, err = f.orders.InsertSeller(ctx, 2, "dev-s2", 6_000_000_000, 0.032)
	require.NoError(t, err)

	// 0.15 BTC at 0.05 plus 0.1 BTC at 0.045 crosses the 0.2 BTC
	// threshold at 0.045; the sell rate carves the margin out.
	_, err = f.orders.InsertBuyer(ctx, 3, "dev-b1", 15_000_000, 0.05)
	require.NoError(t, err)
	_, err = f.orders.InsertBuyer(ctx, 4, "dev-b2", 10_000_000, 0.045)
	require.NoError(t, err)

	f.usecase.UpdateRates(ctx)

	r := f.usecase.Rates()
	// 0.032 * 1.02 = 0.03264, snapped to the 0.0001 tick.
	assert.InDelta(t, 0.0326, *r.BuyRate, 1e-9)
	// 0.045 / 1.02 = 0.04412..., snapped to 0.0441.
	assert.InDelta(t, 0.0441, *r.SellRate, 1e-9)

	// Quotes are mirrored for the public read path.
	require.NotNil(t, f.mirror.LastRates)
	assert.InDelta(t, 0.0326, *f.mirror.LastRates.BuyRate, 1e-9)
	assert.Zero(t, f.notifier.Count())
}

func TestUpdateRatesDegradesOnShallowBook(t *testing.T) {
	f := newInstantFixture(t)
	ctx := context.Background()

	// 1 GB of sell depth cannot absorb the 10 GB threshold: the quote
	// degrades to the worst price seen and the operator is alerted.
	_, err := f.orders.InsertSeller(ctx, 1, "dev-s1", 1_000_000_000, 0.05)
	require.NoError(t, err)

	f.usecase.UpdateRates(ctx)

	r := f.usecase.Rates()
	assert.Equal(t, 0.05, *r.BuyRate)
	// Empty buy side degrades to the safe sell rate.
	assert.Equal(t, 0.01, *r.SellRate)
	assert.Equal(t, 2, f.notifier.Count())
}

func TestHandleInstantBuyOrderFillsAgainstTheBook(t *testing.T) {
	f := newInstantFixture(t)
	ctx := context.Background()

	// 10 GB at 0.03 hits the depth threshold on the first order, so the
	// standing buy rate becomes 0.03 * 1.02 = 0.0306. The dearer order
	// sits above the rate and stays out of reach.
	s1, err := f.orders.InsertSeller(ctx, 1, "dev-s1", 10_000_000_000, 0.03)
	require.NoError(t, err)
	_, err = f.orders.InsertSeller(ctx, 2, "dev-s2", 10_000_000_000, 0.032)
	require.NoError(t, err)
	f.usecase.UpdateRates(ctx)

	depositID := f.deposits.AddBuyerDeposit(30_600_000)

	// 0.306 BTC at the 0.0306 rate buys exactly 10 GB.
	require.NoError(t, f.usecase.HandleInstantBuyOrder(ctx, depositID, 30_600_000, "dev-buyer"))

	// Deal recorded at the standing rate with zero commission.
	require.Len(t, f.deals.BuyerDeals, 1)
	deal := f.deals.BuyerDeals[0]
	assert.Equal(t, int64(30_600_000), deal.SatoshiAmount)
	assert.Equal(t, int64(10_000_000_000), deal.ByteAmount)
	assert.InDelta(t, 0.0306, deal.Price, 1e-9)

	d := f.deposits.BuyerDeposits[depositID]
	require.NotNil(t, d.ConfirmationDate)
	assert.Equal(t, int64(0), *d.FeeSatoshiAmount)
	assert.Equal(t, int64(30_600_000), *d.NetSatoshiAmount)

	// The cheap order was fully consumed at its own price and linked to
	// the deal.
	var consumed int
	for _, o := range f.orders.Sellers {
		if o.BuyerInstantDealID != nil {
			require.Equal(t, s1, o.ID)
			assert.Equal(t, deal.ID, *o.BuyerInstantDealID)
			assert.Equal(t, int64(10_000_000_000), *o.SoldByteAmount)
			assert.Equal(t, 0.03, *o.ExecutionPrice)
			consumed++
		}
	}
	assert.Equal(t, 1, consumed)

	// The order above the rate was not touched.
	sellers, err := f.orders.ActiveSellers(ctx)
	require.NoError(t, err)
	require.Len(t, sellers, 1)
	assert.Equal(t, 0.032, sellers[0].Price)
	assert.Equal(t, int64(10_000_000_000), sellers[0].ByteAmount)
}

func TestHandleInstantBuyOrderLeavesOneRemainder(t *testing.T) {
	f := newInstantFixture(t)
	ctx := context.Background()

	// 6 GB at 0.03 plus 10 GB at 0.032 reaches the threshold on the
	// second order: the rate is 0.032 * 1.02 = 0.0326 and both orders
	// are inside it.
	_, err := f.orders.InsertSeller(ctx, 1, "dev-s1", 6_000_000_000, 0.03)
	require.NoError(t, err)
	s2, err := f.orders.InsertSeller(ctx, 2, "dev-s2", 10_000_000_000, 0.032)
	require.NoError(t, err)
	f.usecase.UpdateRates(ctx)

	// 0.26080 BTC at 0.0326 buys 8 GB: all of the first order plus 2 GB
	// of the second.
	depositID := f.deposits.AddBuyerDeposit(26_080_000)
	require.NoError(t, f.usecase.HandleInstantBuyOrder(ctx, depositID, 26_080_000, "dev-buyer"))

	sellers, err := f.orders.ActiveSellers(ctx)
	require.NoError(t, err)
	require.Len(t, sellers, 1)
	assert.Equal(t, int64(8_000_000_000), sellers[0].ByteAmount)
	require.NotNil(t, sellers[0].PrevOrderID)
	assert.Equal(t, s2, *sellers[0].PrevOrderID)
}

func TestHandleInstantBuyOrderParksOnShortfall(t *testing.T) {
	f := newInstantFixture(t)
	ctx := context.Background()

	// 1 GB of depth cannot cover a deposit worth 2 GB at the safe rate.
	_, err := f.orders.InsertSeller(ctx, 1, "dev-s1", 1_000_000_000, 0.03)
	require.NoError(t, err)

	depositID := f.deposits.AddBuyerDeposit(8_000_000)
	require.NoError(t, f.usecase.HandleInstantBuyOrder(ctx, depositID, 8_000_000, "dev-buyer"))

	// The deposit became a resting buy order at the standing rate, no
	// deal was cut, and the customer was told.
	require.Len(t, f.book.buyOrders, 1)
	assert.Equal(t, depositID, f.book.buyOrders[0].DepositID)
	assert.Equal(t, int64(8_000_000), f.book.buyOrders[0].Amount)
	assert.Equal(t, 0.04, f.book.buyOrders[0].Price)
	assert.Empty(t, f.deals.BuyerDeals)
	assert.NotEmpty(t, f.messenger.TextsFor("dev-buyer"))
}

func TestHandleInstantSellOrderFillsAgainstTheBook(t *testing.T) {
	f := newInstantFixture(t)
	ctx := context.Background()

	// Deep buy side: 0.3 BTC at 0.05. Sell rate stays safe only if the
	// threshold is not met, so make it met: 0.05 / 1.02 -> 0.049.
	b1, err := f.orders.InsertBuyer(ctx, 1, "dev-b1", 30_000_000, 0.05)
	require.NoError(t, err)
	f.usecase.UpdateRates(ctx)

	r := f.usecase.Rates()
	require.InDelta(t, 0.049, *r.SellRate, 1e-9)

	// 2 GB at the 0.049 rate earns 0.098 BTC.
	depositID := f.deposits.AddSellerDeposit(2_000_000_000)
	require.NoError(t, f.usecase.HandleInstantSellOrder(ctx, depositID, 2_000_000_000, "dev-seller"))

	require.Len(t, f.deals.SellerDeals, 1)
	deal := f.deals.SellerDeals[0]
	assert.Equal(t, int64(2_000_000_000), deal.ByteAmount)
	assert.Equal(t, int64(9_800_000), deal.SatoshiAmount)

	// The buyer order was partially consumed at its own 0.05 price and
	// the rest returned to the book.
	buyer := f.orders.Buyers[0]
	require.Equal(t, b1, buyer.ID)
	require.NotNil(t, buyer.MatchDate)
	assert.Equal(t, 0.05, *buyer.ExecutionPrice)
	assert.Equal(t, int64(9_800_000), *buyer.SoldSatoshiAmount)
	assert.Equal(t, deal.ID, *buyer.SellerInstantDealID)

	rest, err := f.orders.BestBuyer(ctx)
	require.NoError(t, err)
	require.NotNil(t, rest)
	assert.Equal(t, int64(20_200_000), rest.SatoshiAmount)
}

func TestHandleInstantSellOrderParksOnShortfall(t *testing.T) {
	f := newInstantFixture(t)
	ctx := context.Background()

	depositID := f.deposits.AddSellerDeposit(2_000_000_000)
	require.NoError(t, f.usecase.HandleInstantSellOrder(ctx, depositID, 2_000_000_000, "dev-seller"))

	require.Len(t, f.book.sellOrders, 1)
	assert.Equal(t, int64(2_000_000_000), f.book.sellOrders[0].Amount)
	assert.Equal(t, 0.01, f.book.sellOrders[0].Price)
	assert.Empty(t, f.deals.SellerDeals)
}

func TestHandleInstantSellOrderRejectsDustAmount(t *testing.T) {
	f := newInstantFixture(t)
	ctx := context.Background()

	// 3 bytes at the safe rate rounds to zero satoshis.
	err := f.usecase.HandleInstantSellOrder(ctx, 1, 3, "dev-seller")
	assert.Error(t, err)
}

func TestPlanBuyFillReportsConsumptionAndRemainder(t *testing.T) {
	sellers := []*orderv1.SellerOrder{
		{ID: 1, ByteAmount: 6_000_000_000, Price: 0.03},
		{ID: 2, ByteAmount: 10_000_000_000, Price: 0.032},
	}

	fill, err := planBuyFill(sellers, 8_000_000_000)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, fill.ConsumedOrderIDs)
	require.NotNil(t, fill.Remainder)
	assert.Equal(t, int64(2), fill.Remainder.OrderID)
	assert.Equal(t, int64(2_000_000_000), fill.Remainder.TransactedBytes)
	assert.Equal(t, int64(8_000_000_000), fill.TransactedBytes)
	// 6 GB at 0.03 plus 2 GB at 0.032.
	assert.Equal(t, int64(24_400_000), fill.TransactedSatoshis)
}

func TestPlanFillFlagsShortDepth(t *testing.T) {
	sellers := []*orderv1.SellerOrder{{ID: 1, ByteAmount: 1_000_000_000, Price: 0.05}}
	_, err := planBuyFill(sellers, 2_000_000_000)
	require.Error(t, err)
	assert.True(t, errors.ErrorCodeEquals(err, string(errors.LiquidityShortfall)))

	buyers := []*orderv1.BuyerOrder{{ID: 1, SatoshiAmount: 1_000_000, Price: 0.05}}
	_, err = planSellFill(buyers, 2_000_000)
	require.Error(t, err)
	assert.True(t, errors.ErrorCodeEquals(err, string(errors.LiquidityShortfall)))
}
