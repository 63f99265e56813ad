package settlement

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderv1 "github.com/byteball/btc-exchange/internal/domain/order/v1"
	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
	"github.com/byteball/btc-exchange/internal/events"
	"github.com/byteball/btc-exchange/internal/testutil"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

type settlementFixture struct {
	usecase    *Usecase
	orders     *testutil.FakeOrderRepo
	deals      *testutil.FakeInstantDealRepo
	btc        *testutil.FakeBitcoinRail
	wallet     *testutil.FakeByteRail
	messenger  *testutil.FakeMessenger
	notifier   *testutil.FakeNotifier
	dispatcher *events.Dispatcher
}

func newSettlementFixture(t *testing.T, tx postgresql.TxRunner) *settlementFixture {
	t.Helper()
	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(t, err)

	f := &settlementFixture{
		orders:     testutil.NewFakeOrderRepo(),
		deals:      testutil.NewFakeInstantDealRepo(),
		btc:        &testutil.FakeBitcoinRail{},
		wallet:     &testutil.FakeByteRail{},
		messenger:  &testutil.FakeMessenger{},
		notifier:   &testutil.FakeNotifier{},
		dispatcher: events.NewDispatcher(),
	}
	f.usecase = NewUsecase(
		f.orders, f.deals, tx, keylock.New(),
		f.btc, f.wallet, f.messenger, f.notifier, f.dispatcher, log,
	)
	return f
}

// seedMatchedPair rests a buyer and a seller and crosses them, leaving
// both awaiting settlement. Returns the two order ids.
func seedMatchedPair(t *testing.T, f *settlementFixture) (buyerID, sellerID int64) {
	t.Helper()
	ctx := context.Background()

	buyerID, err := f.orders.InsertBuyer(ctx, 1, "dev-buyer", 5_000_000, 0.05)
	require.NoError(t, err)
	sellerID, err = f.orders.InsertSeller(ctx, 2, "dev-seller", 1_000_000_000, 0.05)
	require.NoError(t, err)

	props := orderv1.MatchProps{
		ExecutionPrice:     0.05,
		TransactedSatoshis: 5_000_000,
		TransactedBytes:    1_000_000_000,
	}
	buyerProps := props
	buyerProps.OppositeOrderID = &sellerID
	require.NoError(t, f.orders.MarkBuyerMatched(ctx, buyerID, buyerProps))
	sellerProps := props
	sellerProps.OppositeOrderID = &buyerID
	require.NoError(t, f.orders.MarkSellerMatched(ctx, sellerID, sellerProps))
	return buyerID, sellerID
}

func TestSettleAllPaysBothLegsExactlyOnce(t *testing.T) {
	f := newSettlementFixture(t, testutil.PassTxRunner{})
	ctx := context.Background()

	var executed []settlementv1.Obligation
	f.dispatcher.OnPayoutExecuted(func(_ context.Context, o settlementv1.Obligation, _ string) {
		executed = append(executed, o)
	})

	buyerID, sellerID := seedMatchedPair(t, f)

	f.usecase.SettleAll(ctx)

	// The buyer got bytes, the seller got satoshis.
	require.Len(t, f.wallet.Payments, 1)
	assert.Equal(t, "payout-dev-buyer", f.wallet.Payments[0].Address)
	assert.Equal(t, int64(1_000_000_000), f.wallet.Payments[0].Amount)
	require.Len(t, f.btc.Payments, 1)
	assert.Equal(t, "payout-dev-seller", f.btc.Payments[0].Address)
	assert.Equal(t, int64(5_000_000), f.btc.Payments[0].Amount)

	// Results recorded next to the orders.
	for _, o := range f.orders.Buyers {
		if o.ID == buyerID {
			require.NotNil(t, o.ExecutionDate)
			assert.Equal(t, "unit-1", *o.Unit)
		}
	}
	for _, o := range f.orders.Sellers {
		if o.ID == sellerID {
			require.NotNil(t, o.ExecutionDate)
			assert.Equal(t, "txid-1", *o.Txid)
		}
	}

	// Both participants told, both events emitted.
	assert.NotEmpty(t, f.messenger.TextsFor("dev-buyer"))
	assert.NotEmpty(t, f.messenger.TextsFor("dev-seller"))
	require.Len(t, executed, 2)

	// A second sweep finds nothing left to pay.
	f.usecase.SettleAll(ctx)
	assert.Len(t, f.wallet.Payments, 1)
	assert.Len(t, f.btc.Payments, 1)
}

func TestSettleSkipsObligationWithExistingMarker(t *testing.T) {
	f := newSettlementFixture(t, testutil.PassTxRunner{})
	ctx := context.Background()

	buyerID, _ := seedMatchedPair(t, f)

	// An earlier attempt died after inserting the marker; whether the
	// rail paid is unknown, so the sweep must not pay again.
	inserted, err := f.orders.InsertBuyerExecution(ctx, buyerID)
	require.NoError(t, err)
	require.True(t, inserted)

	f.usecase.SettleBookBytes(ctx)

	assert.Empty(t, f.wallet.Payments)
	for _, o := range f.orders.Buyers {
		if o.ID == buyerID {
			assert.Nil(t, o.ExecutionDate)
		}
	}
	assert.Zero(t, f.notifier.Count())
}

func TestSettleStampsDustAsTerminal(t *testing.T) {
	f := newSettlementFixture(t, testutil.PassTxRunner{})
	ctx := context.Background()

	buyerID, _ := seedMatchedPair(t, f)
	f.wallet.DustBelow = 2_000_000_000

	var executed []settlementv1.Obligation
	f.dispatcher.OnPayoutExecuted(func(_ context.Context, o settlementv1.Obligation, _ string) {
		executed = append(executed, o)
	})

	f.usecase.SettleBookBytes(ctx)

	// No payment left the rail, but the obligation is closed for good.
	assert.Empty(t, f.wallet.Payments)
	for _, o := range f.orders.Buyers {
		if o.ID == buyerID {
			require.NotNil(t, o.ExecutionDate)
			assert.Equal(t, "too small", *o.Unit)
		}
	}

	// The counterpart is still told the trade completed, with the
	// sentinel standing in for the unit.
	texts := f.messenger.TextsFor("dev-buyer")
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "too small")
	assert.Len(t, executed, 1)

	// Never retried.
	f.usecase.SettleBookBytes(ctx)
	assert.Empty(t, f.wallet.Payments)
}

func TestSettleRetriesAfterRailFailure(t *testing.T) {
	var f *settlementFixture
	// Emulate the transactional marker: a failed payout rolls the
	// attempt record back so the next sweep sees the obligation again.
	tx := testutil.SnapshotTxRunner{Snapshot: func() func() {
		saved := make(map[int64]bool, len(f.orders.BuyerExecutions))
		for k, v := range f.orders.BuyerExecutions {
			saved[k] = v
		}
		return func() { f.orders.BuyerExecutions = saved }
	}}
	f = newSettlementFixture(t, tx)
	ctx := context.Background()

	buyerID, _ := seedMatchedPair(t, f)
	f.wallet.FailNext = true

	f.usecase.SettleBookBytes(ctx)

	// First sweep failed: nothing paid, operator alerted, marker gone.
	assert.Empty(t, f.wallet.Payments)
	assert.Equal(t, 1, f.notifier.Count())
	assert.False(t, f.orders.BuyerExecutions[buyerID])

	f.usecase.SettleBookBytes(ctx)

	require.Len(t, f.wallet.Payments, 1)
	for _, o := range f.orders.Buyers {
		if o.ID == buyerID {
			require.NotNil(t, o.ExecutionDate)
			assert.Equal(t, "unit-1", *o.Unit)
		}
	}
}

func TestSettleInstantDeals(t *testing.T) {
	f := newSettlementFixture(t, testutil.PassTxRunner{})
	ctx := context.Background()

	f.deals.PendingBuyer = []settlementv1.Obligation{{
		Kind:          settlementv1.KindInstantBytes,
		SourceID:      7,
		DeviceAddress: "dev-buyer",
		ToAddress:     "BYTE-ADDR",
		Amount:        500_000_000,
	}}
	f.deals.PendingSeller = []settlementv1.Obligation{{
		Kind:          settlementv1.KindInstantBTC,
		SourceID:      8,
		DeviceAddress: "dev-seller",
		ToAddress:     "BTC-ADDR",
		Amount:        400_000,
	}}

	f.usecase.SettleAll(ctx)

	require.Len(t, f.wallet.Payments, 1)
	assert.Equal(t, "BYTE-ADDR", f.wallet.Payments[0].Address)
	require.Len(t, f.btc.Payments, 1)
	assert.Equal(t, "BTC-ADDR", f.btc.Payments[0].Address)
	assert.Equal(t, "unit-1", f.deals.BuyerStamps[7])
	assert.Equal(t, "txid-1", f.deals.SellerStamps[8])

	// Stamped deals drop out of the pending sets.
	f.usecase.SettleAll(ctx)
	assert.Len(t, f.wallet.Payments, 1)
	assert.Len(t, f.btc.Payments, 1)
}
