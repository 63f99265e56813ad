package testutil

import (
	"context"
	"fmt"
	"sync"

	instantv1 "github.com/byteball/btc-exchange/internal/domain/instant/v1"
	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
	"github.com/byteball/btc-exchange/internal/gateway/bitcoin"
	"github.com/byteball/btc-exchange/pkg/errors"
)

// PassTxRunner runs the callback without a real transaction.
type PassTxRunner struct{}

// InTransaction invokes fn directly.
func (PassTxRunner) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// SentText is one recorded chat message.
type SentText struct {
	DeviceAddress string
	Text          string
}

// SentObject is one recorded structured message.
type SentObject struct {
	DeviceAddress string
	MsgType       string
	Payload       any
}

// FakeMessenger records outbound device messages.
type FakeMessenger struct {
	mu      sync.Mutex
	Texts   []SentText
	Objects []SentObject
}

// SendText records a chat message.
func (f *FakeMessenger) SendText(ctx context.Context, deviceAddress, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Texts = append(f.Texts, SentText{DeviceAddress: deviceAddress, Text: text})
	return nil
}

// SendObject records a structured message.
func (f *FakeMessenger) SendObject(ctx context.Context, deviceAddress, msgType string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects = append(f.Objects, SentObject{DeviceAddress: deviceAddress, MsgType: msgType, Payload: payload})
	return nil
}

// TextsFor returns the chat messages recorded for one device.
func (f *FakeMessenger) TextsFor(deviceAddress string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, t := range f.Texts {
		if t.DeviceAddress == deviceAddress {
			out = append(out, t.Text)
		}
	}
	return out
}

// Alert is one recorded operator notification.
type Alert struct {
	Subject string
	Body    string
}

// FakeNotifier records operator alerts.
type FakeNotifier struct {
	mu     sync.Mutex
	Alerts []Alert
}

// NotifyOperator records an alert.
func (f *FakeNotifier) NotifyOperator(subject, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Alerts = append(f.Alerts, Alert{Subject: subject, Body: body})
}

// Count returns the number of recorded alerts.
func (f *FakeNotifier) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Alerts)
}

// FakeMirror records published quotes.
type FakeMirror struct {
	mu        sync.Mutex
	LastRates *instantv1.Rates
	LastBid   *float64
	LastAsk   *float64
}

// PublishRates records the quotes.
func (f *FakeMirror) PublishRates(ctx context.Context, r instantv1.Rates) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := r
	f.LastRates = &cp
	return nil
}

// PublishTopOfBook records the best bid and ask.
func (f *FakeMirror) PublishTopOfBook(ctx context.Context, bid, ask *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastBid = bid
	f.LastAsk = ask
	return nil
}

// Payment is one recorded rail payment.
type Payment struct {
	Address string
	Amount  int64
}

// FakeBitcoinRail records SendPayment calls. DustBelow rejects small
// amounts the way bitcoind does; FailNext makes the next call error out.
type FakeBitcoinRail struct {
	mu        sync.Mutex
	next      int
	Payments  []Payment
	DustBelow int64
	FailNext  bool

	Receiveds []bitcoin.Received
	NextBlock string
	Funds     int64
}

// NewReceivingAddress hands out sequential addresses.
func (f *FakeBitcoinRail) NewReceivingAddress(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return fmt.Sprintf("btc-addr-%d", f.next), nil
}

// SendPayment records the payment and returns a synthetic txid.
func (f *FakeBitcoinRail) SendPayment(ctx context.Context, address string, satoshis int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNext {
		f.FailNext = false
		return "", errors.NewErrorDetails("bitcoind unreachable", string(errors.PayoutFailure), "send_payment")
	}
	if f.DustBelow > 0 && satoshis < f.DustBelow {
		return "", errors.NewErrorDetails("payment rejected as too small", string(errors.DustPayment), "send_payment")
	}
	f.Payments = append(f.Payments, Payment{Address: address, Amount: satoshis})
	return fmt.Sprintf("txid-%d", len(f.Payments)), nil
}

// ListSince replays the scripted receive list once.
func (f *FakeBitcoinRail) ListSince(ctx context.Context, blockHash string) ([]bitcoin.Received, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.Receiveds
	f.Receiveds = nil
	return out, f.NextBlock, nil
}

// Balance returns the scripted hot-wallet funds.
func (f *FakeBitcoinRail) Balance(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Funds, nil
}

// FakeByteRail records IssuePayment calls on the bytes side.
type FakeByteRail struct {
	mu        sync.Mutex
	next      int
	Payments  []Payment
	DustBelow int64
	FailNext  bool
	Funds     int64
}

// NewReceivingAddress hands out sequential addresses.
func (f *FakeByteRail) NewReceivingAddress(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return fmt.Sprintf("byte-addr-%d", f.next), nil
}

// IssuePayment records the payment and returns a synthetic unit.
func (f *FakeByteRail) IssuePayment(ctx context.Context, address string, amount int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailNext {
		f.FailNext = false
		return "", errors.NewErrorDetails("wallet unreachable", string(errors.PayoutFailure), "issue_payment")
	}
	if f.DustBelow > 0 && amount < f.DustBelow {
		return "", errors.NewErrorDetails("payment rejected as too small", string(errors.DustPayment), "issue_payment")
	}
	f.Payments = append(f.Payments, Payment{Address: address, Amount: amount})
	return fmt.Sprintf("unit-%d", len(f.Payments)), nil
}

// Balance returns the scripted hot-wallet funds.
func (f *FakeByteRail) Balance(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Funds, nil
}

// FakeInstantDealRepo is an in-memory instant deal repository. Pending
// obligations are seeded directly; stamping removes them from the
// pending set the way execution_date does in the store.
type FakeInstantDealRepo struct {
	mu     sync.Mutex
	nextID int64

	BuyerDeals  []instantv1.BuyerDeal
	SellerDeals []instantv1.SellerDeal

	PendingBuyer  []settlementv1.Obligation
	PendingSeller []settlementv1.Obligation

	BuyerExecutions  map[int64]bool
	SellerExecutions map[int64]bool
	BuyerStamps      map[int64]string
	SellerStamps     map[int64]string
}

// NewFakeInstantDealRepo creates an empty deal store.
func NewFakeInstantDealRepo() *FakeInstantDealRepo {
	return &FakeInstantDealRepo{
		BuyerExecutions:  make(map[int64]bool),
		SellerExecutions: make(map[int64]bool),
		BuyerStamps:      make(map[int64]string),
		SellerStamps:     make(map[int64]string),
	}
}

// InsertBuyerDeal records an instant buy fill.
func (f *FakeInstantDealRepo) InsertBuyerDeal(ctx context.Context, depositID, satoshiAmount, byteAmount int64, price float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.BuyerDeals = append(f.BuyerDeals, instantv1.BuyerDeal{
		ID:            f.nextID,
		DepositID:     depositID,
		SatoshiAmount: satoshiAmount,
		ByteAmount:    byteAmount,
		Price:         price,
	})
	return f.nextID, nil
}

// InsertSellerDeal records an instant sell fill.
func (f *FakeInstantDealRepo) InsertSellerDeal(ctx context.Context, depositID, satoshiAmount, byteAmount int64, price float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.SellerDeals = append(f.SellerDeals, instantv1.SellerDeal{
		ID:            f.nextID,
		DepositID:     depositID,
		ByteAmount:    byteAmount,
		SatoshiAmount: satoshiAmount,
		Price:         price,
	})
	return f.nextID, nil
}

// PendingBuyerDealPayouts lists unstamped seeded buyer obligations.
func (f *FakeInstantDealRepo) PendingBuyerDealPayouts(ctx context.Context) ([]settlementv1.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []settlementv1.Obligation
	for _, o := range f.PendingBuyer {
		if _, done := f.BuyerStamps[o.SourceID]; !done {
			out = append(out, o)
		}
	}
	return out, nil
}

// PendingSellerDealPayouts lists unstamped seeded seller obligations.
func (f *FakeInstantDealRepo) PendingSellerDealPayouts(ctx context.Context) ([]settlementv1.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []settlementv1.Obligation
	for _, o := range f.PendingSeller {
		if _, done := f.SellerStamps[o.SourceID]; !done {
			out = append(out, o)
		}
	}
	return out, nil
}

// InsertBuyerDealExecution records the attempt marker.
func (f *FakeInstantDealRepo) InsertBuyerDealExecution(ctx context.Context, dealID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BuyerExecutions[dealID] {
		return false, nil
	}
	f.BuyerExecutions[dealID] = true
	return true, nil
}

// InsertSellerDealExecution records the attempt marker.
func (f *FakeInstantDealRepo) InsertSellerDealExecution(ctx context.Context, dealID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SellerExecutions[dealID] {
		return false, nil
	}
	f.SellerExecutions[dealID] = true
	return true, nil
}

// StampBuyerDealExecuted finalizes a buyer deal payout.
func (f *FakeInstantDealRepo) StampBuyerDealExecuted(ctx context.Context, dealID int64, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BuyerStamps[dealID] = unit
	return nil
}

// StampSellerDealExecuted finalizes a seller deal payout.
func (f *FakeInstantDealRepo) StampSellerDealExecuted(ctx context.Context, dealID int64, txid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SellerStamps[dealID] = txid
	return nil
}

// SnapshotTxRunner emulates rollback for the in-memory stores: Snapshot
// captures the state before the callback and the returned restore func is
// invoked when the callback fails.
type SnapshotTxRunner struct {
	Snapshot func() (restore func())
}

// InTransaction runs fn and restores the snapshot on error.
func (r SnapshotTxRunner) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	restore := r.Snapshot()
	if err := fn(ctx); err != nil {
		restore()
		return err
	}
	return nil
}
