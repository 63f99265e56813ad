package deposit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	depositv1 "github.com/byteball/btc-exchange/internal/domain/deposit/v1"
	"github.com/byteball/btc-exchange/internal/events"
	"github.com/byteball/btc-exchange/internal/testutil"
	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/errors"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
)

type placedOrder struct {
	DepositID int64
	Amount    int64
	Price     float64
}

type recordingBook struct {
	buys    []placedOrder
	sells   []placedOrder
	matches int
	fail    bool
}

func (b *recordingBook) InsertBuyerOrder(ctx context.Context, depositID int64, deviceAddress string, satoshiAmount int64, orderPrice float64) (int64, error) {
	if b.fail {
		return 0, errors.NewErrorDetails("book unavailable", string(errors.GeneralRepositoryError), "insert")
	}
	b.buys = append(b.buys, placedOrder{DepositID: depositID, Amount: satoshiAmount, Price: orderPrice})
	return int64(len(b.buys)), nil
}

func (b *recordingBook) InsertSellerOrder(ctx context.Context, depositID int64, deviceAddress string, byteAmount int64, orderPrice float64) (int64, error) {
	b.sells = append(b.sells, placedOrder{DepositID: depositID, Amount: byteAmount, Price: orderPrice})
	return int64(len(b.sells)), nil
}

func (b *recordingBook) Match(ctx context.Context) error {
	b.matches++
	return nil
}

type recordingInstant struct {
	buys  []placedOrder
	sells []placedOrder
}

func (i *recordingInstant) HandleInstantBuyOrder(ctx context.Context, depositID int64, satoshiAmount int64, deviceAddress string) error {
	i.buys = append(i.buys, placedOrder{DepositID: depositID, Amount: satoshiAmount})
	return nil
}

func (i *recordingInstant) HandleInstantSellOrder(ctx context.Context, depositID int64, byteAmount int64, deviceAddress string) error {
	i.sells = append(i.sells, placedOrder{DepositID: depositID, Amount: byteAmount})
	return nil
}

type dispatchFixture struct {
	usecase     *Usecase
	deposits    *testutil.FakeDepositRepo
	book        *recordingBook
	instant     *recordingInstant
	messenger   *testutil.FakeMessenger
	bookChanges int
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(t, err)

	f := &dispatchFixture{
		deposits:  testutil.NewFakeDepositRepo(),
		book:      &recordingBook{},
		instant:   &recordingInstant{},
		messenger: &testutil.FakeMessenger{},
	}
	dispatcher := events.NewDispatcher()
	dispatcher.OnBookChanged(func(context.Context) { f.bookChanges++ })

	cfg := config.ExchangeConfig{
		MinConfirmations: 2,
		MinSatoshis:      200_000,
		MinBytes:         300_000_000,
	}
	f.usecase = NewUsecase(
		f.deposits, f.book, f.instant,
		testutil.PassTxRunner{}, keylock.New(),
		f.messenger, dispatcher, log, cfg,
	)
	return f
}

func TestDustBuyerDepositBecomesDonation(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	id := f.deposits.AddBuyerDeposit(100_000)
	f.deposits.RipeBuyers = []depositv1.PendingBuyerDeposit{{
		DepositID:     id,
		SatoshiAmount: 100_000,
		DeviceAddress: "dev-buyer",
	}}

	require.NoError(t, f.usecase.ProcessRipeBuyerDeposits(ctx))

	// The whole amount is booked as fee; nothing reaches the book.
	d := f.deposits.BuyerDeposits[id]
	require.NotNil(t, d.ConfirmationDate)
	assert.Equal(t, int64(100_000), *d.FeeSatoshiAmount)
	assert.Equal(t, int64(0), *d.NetSatoshiAmount)
	assert.Empty(t, f.book.buys)
	assert.Empty(t, f.instant.buys)
	assert.NotEmpty(t, f.messenger.TextsFor("dev-buyer"))
	assert.Equal(t, 1, f.bookChanges)
}

func TestPricedBuyerDepositRestsAndMatches(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	price := 0.04
	f.deposits.RipeBuyers = []depositv1.PendingBuyerDeposit{{
		DepositID:     11,
		SatoshiAmount: 1_000_000,
		DeviceAddress: "dev-buyer",
		BuyPrice:      &price,
	}}

	require.NoError(t, f.usecase.ProcessRipeBuyerDeposits(ctx))

	require.Len(t, f.book.buys, 1)
	assert.Equal(t, int64(11), f.book.buys[0].DepositID)
	assert.Equal(t, 0.04, f.book.buys[0].Price)
	assert.Equal(t, 1, f.book.matches)
	assert.Empty(t, f.instant.buys)
}

func TestUnpricedBuyerDepositGoesInstant(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	f.deposits.RipeBuyers = []depositv1.PendingBuyerDeposit{{
		DepositID:     12,
		SatoshiAmount: 1_000_000,
		DeviceAddress: "dev-buyer",
	}}

	require.NoError(t, f.usecase.ProcessRipeBuyerDeposits(ctx))

	require.Len(t, f.instant.buys, 1)
	assert.Equal(t, int64(12), f.instant.buys[0].DepositID)
	assert.Empty(t, f.book.buys)
}

func TestSellerDepositDispatch(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	price := 0.05
	f.deposits.RipeSellers = []depositv1.PendingSellerDeposit{
		{DepositID: 21, ByteAmount: 1_000_000_000, DeviceAddress: "dev-a", SellPrice: &price},
		{DepositID: 22, ByteAmount: 1_000_000_000, DeviceAddress: "dev-b"},
	}

	require.NoError(t, f.usecase.ProcessRipeSellerDeposits(ctx))

	require.Len(t, f.book.sells, 1)
	assert.Equal(t, int64(21), f.book.sells[0].DepositID)
	require.Len(t, f.instant.sells, 1)
	assert.Equal(t, int64(22), f.instant.sells[0].DepositID)
	assert.Equal(t, 1, f.bookChanges)
}

func TestFailedDepositDoesNotBlockTheRest(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	price := 0.04
	f.book.fail = true
	f.deposits.RipeBuyers = []depositv1.PendingBuyerDeposit{
		{DepositID: 31, SatoshiAmount: 1_000_000, DeviceAddress: "dev-a", BuyPrice: &price},
		{DepositID: 32, SatoshiAmount: 1_000_000, DeviceAddress: "dev-b"},
	}

	require.NoError(t, f.usecase.ProcessRipeBuyerDeposits(ctx))

	// The priced deposit failed; the unpriced one was still handled.
	require.Len(t, f.instant.buys, 1)
	assert.Equal(t, int64(32), f.instant.buys[0].DepositID)
	assert.Equal(t, 1, f.bookChanges)
}
