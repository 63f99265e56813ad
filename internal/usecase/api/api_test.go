package api

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderv1 "github.com/byteball/btc-exchange/internal/domain/order/v1"
	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
	"github.com/byteball/btc-exchange/internal/testutil"
	"github.com/byteball/btc-exchange/pkg/logger"
)

type fakeBook struct {
	buyPrices  map[string]*float64
	sellPrices map[string]*float64
	levels     []orderv1.Level
}

func newFakeBook() *fakeBook {
	return &fakeBook{
		buyPrices:  make(map[string]*float64),
		sellPrices: make(map[string]*float64),
	}
}

func (b *fakeBook) UpdateBuyPrice(ctx context.Context, deviceAddress string, newPrice *float64) error {
	b.buyPrices[deviceAddress] = newPrice
	return nil
}

func (b *fakeBook) UpdateSellPrice(ctx context.Context, deviceAddress string, newPrice *float64) error {
	b.sellPrices[deviceAddress] = newPrice
	return nil
}

func (b *fakeBook) GetOrders(ctx context.Context, deviceAddress string) ([]*orderv1.BuyerOrder, []*orderv1.SellerOrder, error) {
	return []*orderv1.BuyerOrder{{ID: 1, DeviceAddress: deviceAddress}}, nil, nil
}

func (b *fakeBook) GetBookLevels(ctx context.Context) ([]orderv1.Level, error) {
	return b.levels, nil
}

type apiFixture struct {
	usecase   *Usecase
	aliases   *testutil.FakeAliasRepo
	book      *fakeBook
	messenger *testutil.FakeMessenger
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(t, err)

	f := &apiFixture{
		aliases:   testutil.NewFakeAliasRepo(),
		book:      newFakeBook(),
		messenger: &testutil.FakeMessenger{},
	}
	f.usecase = NewUsecase(f.aliases, f.book, f.messenger, log)
	return f
}

func validCommand(command string, price float64) json.RawMessage {
	limit := time.Now().Add(time.Hour).Unix()
	if price > 0 {
		return json.RawMessage(fmt.Sprintf(
			`{"command":%q,"price":%v,"tag":"t1","time_limit":%d}`, command, price, limit))
	}
	return json.RawMessage(fmt.Sprintf(
		`{"command":%q,"tag":"t1","time_limit":%d}`, command, limit))
}

func lastReply(t *testing.T, m *testutil.FakeMessenger) map[string]any {
	t.Helper()
	require.NotEmpty(t, m.Objects)
	payload, ok := m.Objects[len(m.Objects)-1].Payload.(map[string]any)
	require.True(t, ok)
	return payload
}

func TestHandleObjectRejectsNonAlias(t *testing.T) {
	f := newAPIFixture(t)

	f.usecase.HandleObject(context.Background(), "stranger", validCommand("buy", 0.04))

	reply := lastReply(t, f.messenger)
	assert.Equal(t, errNotAnAlias, reply["error_code"])
	assert.Equal(t, "you're not an alias", reply["error"])
}

func TestBuyCommandUpdatesThePrincipalsPrice(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	require.NoError(t, f.usecase.RegisterAlias(ctx, "dev-merchant", "alias-1"))

	f.usecase.HandleObject(ctx, "alias-1", validCommand("buy", 0.04))

	require.NotNil(t, f.book.buyPrices["dev-merchant"])
	assert.Equal(t, 0.04, *f.book.buyPrices["dev-merchant"])

	reply := lastReply(t, f.messenger)
	assert.Equal(t, "accepted", reply["response"])
	assert.Equal(t, "t1", reply["tag"])
}

func TestSellCommandUpdatesThePrincipalsPrice(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	require.NoError(t, f.usecase.RegisterAlias(ctx, "dev-merchant", "alias-1"))

	f.usecase.HandleObject(ctx, "alias-1", validCommand("sell", 0.05))

	require.NotNil(t, f.book.sellPrices["dev-merchant"])
	assert.Equal(t, 0.05, *f.book.sellPrices["dev-merchant"])
}

func TestRemoveAliasRevokesCommandAccess(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	require.NoError(t, f.usecase.RegisterAlias(ctx, "dev-merchant", "alias-1"))

	f.usecase.HandleObject(ctx, "alias-1", validCommand("buy", 0.04))
	require.NotNil(t, f.book.buyPrices["dev-merchant"])

	require.NoError(t, f.usecase.RemoveAlias(ctx, "dev-merchant"))

	f.usecase.HandleObject(ctx, "alias-1", validCommand("buy", 0.05))

	reply := lastReply(t, f.messenger)
	assert.Equal(t, errNotAnAlias, reply["error_code"])
	assert.Equal(t, 0.04, *f.book.buyPrices["dev-merchant"])
}

func TestCommandValidation(t *testing.T) {
	ctx := context.Background()
	limit := time.Now().Add(time.Hour).Unix()

	cases := []struct {
		name     string
		raw      string
		wantCode int
	}{
		{"unknown key", fmt.Sprintf(`{"command":"buy","price":1,"tag":"t","time_limit":%d,"extra":1}`, limit), errUnknownKey},
		{"missing command", fmt.Sprintf(`{"tag":"t","time_limit":%d}`, limit), errBadCommand},
		{"non-positive price", fmt.Sprintf(`{"command":"buy","price":-1,"tag":"t","time_limit":%d}`, limit), errBadPrice},
		{"missing tag", fmt.Sprintf(`{"command":"buy","price":1,"time_limit":%d}`, limit), errBadTag},
		{"missing time limit", `{"command":"buy","price":1,"tag":"t"}`, errBadTimeLimit},
		{"expired time limit", `{"command":"buy","price":1,"tag":"t","time_limit":1000}`, errTimeLimitExpired},
		{"buy without price", fmt.Sprintf(`{"command":"buy","tag":"t","time_limit":%d}`, limit), errNoPrice},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAPIFixture(t)
			require.NoError(t, f.usecase.RegisterAlias(ctx, "dev-merchant", "alias-1"))

			f.usecase.HandleObject(ctx, "alias-1", json.RawMessage(tc.raw))

			reply := lastReply(t, f.messenger)
			assert.Equal(t, tc.wantCode, reply["error_code"])
			// The rejected command never touched the book.
			assert.Empty(t, f.book.buyPrices)
		})
	}
}

func TestRateLimit(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	require.NoError(t, f.usecase.RegisterAlias(ctx, "dev-merchant", "alias-1"))

	// Six requests go through.
	for i := 0; i < maxHitsPerWindow; i++ {
		f.usecase.HandleObject(ctx, "alias-1", validCommand("buy", 0.04))
	}
	assert.Len(t, f.messenger.Objects, maxHitsPerWindow)

	// The next two get a warning.
	f.usecase.HandleObject(ctx, "alias-1", validCommand("buy", 0.04))
	reply := lastReply(t, f.messenger)
	assert.Equal(t, errTooManyRequests, reply["error_code"])
	f.usecase.HandleObject(ctx, "alias-1", validCommand("buy", 0.04))
	assert.Len(t, f.messenger.Objects, maxHitsPerWindow+2)

	// Beyond that, silence.
	f.usecase.HandleObject(ctx, "alias-1", validCommand("buy", 0.04))
	assert.Len(t, f.messenger.Objects, maxHitsPerWindow+2)
}

func TestOrdersCommand(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	require.NoError(t, f.usecase.RegisterAlias(ctx, "dev-merchant", "alias-1"))

	f.usecase.HandleObject(ctx, "alias-1", validCommand("orders", 0))

	reply := lastReply(t, f.messenger)
	assert.Equal(t, "t1", reply["tag"])
	response, ok := reply["response"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, response, "buy")
	assert.Contains(t, response, "sell")
}

func TestBookCommand(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	require.NoError(t, f.usecase.RegisterAlias(ctx, "dev-merchant", "alias-1"))
	f.book.levels = []orderv1.Level{{Price: 0.05, Side: orderv1.SideSell, TotalGB: 2}}

	f.usecase.HandleObject(ctx, "alias-1", validCommand("book", 0))

	reply := lastReply(t, f.messenger)
	levels, ok := reply["response"].([]orderv1.Level)
	require.True(t, ok)
	require.Len(t, levels, 1)
	assert.Equal(t, 0.05, levels[0].Price)
}

func TestNotifyPayoutReachesTheAlias(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	require.NoError(t, f.usecase.RegisterAlias(ctx, "dev-merchant", "alias-1"))

	f.usecase.NotifyPayout(ctx, settlementv1.Obligation{
		Kind:          settlementv1.KindBookBytes,
		SourceID:      5,
		DeviceAddress: "dev-merchant",
		Amount:        1_000_000_000,
	}, "unit-abc")

	require.Len(t, f.messenger.Objects, 1)
	assert.Equal(t, "alias-1", f.messenger.Objects[0].DeviceAddress)
	payload := lastReply(t, f.messenger)
	assert.Equal(t, "transaction", payload["event"])
	assert.Equal(t, "bytes", payload["type"])
	assert.Equal(t, int64(1_000_000_000), payload["amount"])
	assert.Equal(t, "unit-abc", payload["txid"])
}

func TestNotifyPayoutSilentWithoutAlias(t *testing.T) {
	f := newAPIFixture(t)

	f.usecase.NotifyPayout(context.Background(), settlementv1.Obligation{
		Kind:          settlementv1.KindBookBTC,
		DeviceAddress: "dev-nobody",
		Amount:        1,
	}, "txid-x")

	assert.Empty(t, f.messenger.Objects)
}
