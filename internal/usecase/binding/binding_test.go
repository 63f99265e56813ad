package binding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byteball/btc-exchange/internal/testutil"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
)

func newBindingUsecase(t *testing.T) (*Usecase, *testutil.FakeBindingRepo) {
	t.Helper()
	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.ErrorLevel))
	require.NoError(t, err)

	bindings := testutil.NewFakeBindingRepo()
	u := NewUsecase(bindings, &testutil.FakeBitcoinRail{}, &testutil.FakeByteRail{}, keylock.New(), log)
	return u, bindings
}

func TestAssignBuyerBindingIssuesOncePerPair(t *testing.T) {
	u, bindings := newBindingUsecase(t)
	ctx := context.Background()

	first, err := u.AssignBuyerBinding(ctx, "dev-1", "BYTEBALL-OUT")
	require.NoError(t, err)
	require.NotEmpty(t, first.ToBitcoinAddress)

	// The same pair gets the same deposit address back.
	again, err := u.AssignBuyerBinding(ctx, "dev-1", "BYTEBALL-OUT")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.ToBitcoinAddress, again.ToBitcoinAddress)
	assert.Len(t, bindings.Buyers, 1)

	// A different payout address gets a fresh one.
	other, err := u.AssignBuyerBinding(ctx, "dev-1", "BYTEBALL-OTHER")
	require.NoError(t, err)
	assert.NotEqual(t, first.ToBitcoinAddress, other.ToBitcoinAddress)
	assert.Len(t, bindings.Buyers, 2)
}

func TestAssignSellerBindingIssuesOncePerPair(t *testing.T) {
	u, bindings := newBindingUsecase(t)
	ctx := context.Background()

	first, err := u.AssignSellerBinding(ctx, "dev-1", "BTC-OUT")
	require.NoError(t, err)
	require.NotEmpty(t, first.ToByteballAddress)

	again, err := u.AssignSellerBinding(ctx, "dev-1", "BTC-OUT")
	require.NoError(t, err)
	assert.Equal(t, first.ToByteballAddress, again.ToByteballAddress)
	assert.Len(t, bindings.Sellers, 1)
}
