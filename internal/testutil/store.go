// Package testutil holds in-memory doubles of the store repositories and
// gateways, with the same ordering and idempotency semantics as the SQL
// implementations.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	bindingv1 "github.com/byteball/btc-exchange/internal/domain/binding/v1"
	depositv1 "github.com/byteball/btc-exchange/internal/domain/deposit/v1"
	orderv1 "github.com/byteball/btc-exchange/internal/domain/order/v1"
	settlementv1 "github.com/byteball/btc-exchange/internal/domain/settlement/v1"
	"github.com/byteball/btc-exchange/pkg/errors"
)

// FakeOrderRepo is an in-memory order repository.
type FakeOrderRepo struct {
	mu     sync.Mutex
	nextID int64
	clock  time.Time

	Buyers  []*orderv1.BuyerOrder
	Sellers []*orderv1.SellerOrder

	BuyerExecutions  map[int64]bool
	SellerExecutions map[int64]bool

	// PayoutAddress resolves the destination of a pending payout; tests
	// that never settle can leave it nil.
	PayoutAddress func(deviceAddress string) string
}

// NewFakeOrderRepo creates an empty book.
func NewFakeOrderRepo() *FakeOrderRepo {
	return &FakeOrderRepo{
		clock:            time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		BuyerExecutions:  make(map[int64]bool),
		SellerExecutions: make(map[int64]bool),
	}
}

func (f *FakeOrderRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *FakeOrderRepo) nextOrderID() int64 {
	f.nextID++
	return f.nextID
}

func (f *FakeOrderRepo) activeBuyers() []*orderv1.BuyerOrder {
	var out []*orderv1.BuyerOrder
	for _, o := range f.Buyers {
		if o.IsActive {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price > out[j].Price
		}
		if !out[i].LastUpdate.Equal(out[j].LastUpdate) {
			return out[i].LastUpdate.Before(out[j].LastUpdate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *FakeOrderRepo) activeSellers() []*orderv1.SellerOrder {
	var out []*orderv1.SellerOrder
	for _, o := range f.Sellers {
		if o.IsActive {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		if !out[i].LastUpdate.Equal(out[j].LastUpdate) {
			return out[i].LastUpdate.Before(out[j].LastUpdate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// BestBuyer returns the top of the buy side.
func (f *FakeOrderRepo) BestBuyer(ctx context.Context) (*orderv1.BuyerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buyers := f.activeBuyers()
	if len(buyers) == 0 {
		return nil, nil
	}
	cp := *buyers[0]
	return &cp, nil
}

// BestSeller returns the top of the sell side.
func (f *FakeOrderRepo) BestSeller(ctx context.Context) (*orderv1.SellerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sellers := f.activeSellers()
	if len(sellers) == 0 {
		return nil, nil
	}
	cp := *sellers[0]
	return &cp, nil
}

// InsertBuyer adds an active buy order.
func (f *FakeOrderRepo) InsertBuyer(ctx context.Context, depositID int64, deviceAddress string, satoshiAmount int64, price float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := &orderv1.BuyerOrder{
		ID:            f.nextOrderID(),
		DepositID:     depositID,
		DeviceAddress: deviceAddress,
		SatoshiAmount: satoshiAmount,
		Price:         price,
		IsActive:      true,
		LastUpdate:    f.tick(),
	}
	f.Buyers = append(f.Buyers, o)
	return o.ID, nil
}

// InsertSeller adds an active sell order.
func (f *FakeOrderRepo) InsertSeller(ctx context.Context, depositID int64, deviceAddress string, byteAmount int64, price float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := &orderv1.SellerOrder{
		ID:            f.nextOrderID(),
		DepositID:     depositID,
		DeviceAddress: deviceAddress,
		ByteAmount:    byteAmount,
		Price:         price,
		IsActive:      true,
		LastUpdate:    f.tick(),
	}
	f.Sellers = append(f.Sellers, o)
	return o.ID, nil
}

// InsertBuyerRemainder adds the unfilled tail of a buy order with its
// parent's time priority.
func (f *FakeOrderRepo) InsertBuyerRemainder(ctx context.Context, parent *orderv1.BuyerOrder, satoshiAmount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parentID := parent.ID
	o := &orderv1.BuyerOrder{
		ID:            f.nextOrderID(),
		DepositID:     parent.DepositID,
		DeviceAddress: parent.DeviceAddress,
		SatoshiAmount: satoshiAmount,
		Price:         parent.Price,
		IsActive:      true,
		LastUpdate:    parent.LastUpdate,
		PrevOrderID:   &parentID,
	}
	f.Buyers = append(f.Buyers, o)
	return o.ID, nil
}

// InsertSellerRemainder adds the unfilled tail of a sell order.
func (f *FakeOrderRepo) InsertSellerRemainder(ctx context.Context, parent *orderv1.SellerOrder, byteAmount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parentID := parent.ID
	o := &orderv1.SellerOrder{
		ID:            f.nextOrderID(),
		DepositID:     parent.DepositID,
		DeviceAddress: parent.DeviceAddress,
		ByteAmount:    byteAmount,
		Price:         parent.Price,
		IsActive:      true,
		LastUpdate:    parent.LastUpdate,
		PrevOrderID:   &parentID,
	}
	f.Sellers = append(f.Sellers, o)
	return o.ID, nil
}

// MarkBuyerMatched closes a buy order with its execution columns.
func (f *FakeOrderRepo) MarkBuyerMatched(ctx context.Context, orderID int64, props orderv1.MatchProps) error {
	if err := props.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.Buyers {
		if o.ID == orderID && o.IsActive {
			now := f.tick()
			o.IsActive = false
			o.MatchDate = &now
			o.ExecutionPrice = &props.ExecutionPrice
			o.SoldSatoshiAmount = &props.TransactedSatoshis
			o.ByteAmount = &props.TransactedBytes
			o.OppositeOrderID = props.OppositeOrderID
			o.SellerInstantDealID = props.InstantDealID
			return nil
		}
	}
	return errNotActive(orderID)
}

// MarkSellerMatched closes a sell order with its execution columns.
func (f *FakeOrderRepo) MarkSellerMatched(ctx context.Context, orderID int64, props orderv1.MatchProps) error {
	if err := props.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.Sellers {
		if o.ID == orderID && o.IsActive {
			now := f.tick()
			o.IsActive = false
			o.MatchDate = &now
			o.ExecutionPrice = &props.ExecutionPrice
			o.SoldByteAmount = &props.TransactedBytes
			o.SatoshiAmount = &props.TransactedSatoshis
			o.OppositeOrderID = props.OppositeOrderID
			o.BuyerInstantDealID = props.InstantDealID
			return nil
		}
	}
	return errNotActive(orderID)
}

// ActiveBuyers returns the buy side in book order.
func (f *FakeOrderRepo) ActiveBuyers(ctx context.Context) ([]*orderv1.BuyerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyBuyers(f.activeBuyers()), nil
}

// ActiveSellers returns the sell side in book order.
func (f *FakeOrderRepo) ActiveSellers(ctx context.Context) ([]*orderv1.SellerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copySellers(f.activeSellers()), nil
}

// ActiveBuyersAtOrAbove filters the buy side by price.
func (f *FakeOrderRepo) ActiveBuyersAtOrAbove(ctx context.Context, price float64) ([]*orderv1.BuyerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*orderv1.BuyerOrder
	for _, o := range f.activeBuyers() {
		if o.Price >= price {
			out = append(out, o)
		}
	}
	return copyBuyers(out), nil
}

// ActiveSellersAtOrBelow filters the sell side by price.
func (f *FakeOrderRepo) ActiveSellersAtOrBelow(ctx context.Context, price float64) ([]*orderv1.SellerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*orderv1.SellerOrder
	for _, o := range f.activeSellers() {
		if o.Price <= price {
			out = append(out, o)
		}
	}
	return copySellers(out), nil
}

// ActiveBuyersByDevice filters the buy side by participant.
func (f *FakeOrderRepo) ActiveBuyersByDevice(ctx context.Context, deviceAddress string) ([]*orderv1.BuyerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*orderv1.BuyerOrder
	for _, o := range f.activeBuyers() {
		if o.DeviceAddress == deviceAddress {
			out = append(out, o)
		}
	}
	return copyBuyers(out), nil
}

// ActiveSellersByDevice filters the sell side by participant.
func (f *FakeOrderRepo) ActiveSellersByDevice(ctx context.Context, deviceAddress string) ([]*orderv1.SellerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*orderv1.SellerOrder
	for _, o := range f.activeSellers() {
		if o.DeviceAddress == deviceAddress {
			out = append(out, o)
		}
	}
	return copySellers(out), nil
}

// RepriceBuyers moves a participant's active buy orders and resets their
// time priority.
func (f *FakeOrderRepo) RepriceBuyers(ctx context.Context, deviceAddress string, price float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var moved int64
	for _, o := range f.Buyers {
		if o.IsActive && o.DeviceAddress == deviceAddress && o.Price != price {
			o.Price = price
			o.LastUpdate = f.tick()
			moved++
		}
	}
	return moved, nil
}

// RepriceSellers moves a participant's active sell orders.
func (f *FakeOrderRepo) RepriceSellers(ctx context.Context, deviceAddress string, price float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var moved int64
	for _, o := range f.Sellers {
		if o.IsActive && o.DeviceAddress == deviceAddress && o.Price != price {
			o.Price = price
			o.LastUpdate = f.tick()
			moved++
		}
	}
	return moved, nil
}

// BookLevels aggregates both sides by price.
func (f *FakeOrderRepo) BookLevels(ctx context.Context) ([]orderv1.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	buyTotals := make(map[float64]float64)
	for _, o := range f.activeBuyers() {
		buyTotals[o.Price] += float64(o.SatoshiAmount) / o.Price / 1e8
	}
	sellTotals := make(map[float64]float64)
	for _, o := range f.activeSellers() {
		sellTotals[o.Price] += float64(o.ByteAmount) / 1e9
	}

	var levels []orderv1.Level
	for price, total := range buyTotals {
		levels = append(levels, orderv1.Level{Price: price, Side: orderv1.SideBuy, TotalGB: total})
	}
	for price, total := range sellTotals {
		levels = append(levels, orderv1.Level{Price: price, Side: orderv1.SideSell, TotalGB: total})
	}
	sort.Slice(levels, func(i, j int) bool {
		if levels[i].Side != levels[j].Side {
			return levels[i].Side == orderv1.SideBuy
		}
		if levels[i].Side == orderv1.SideBuy {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	return levels, nil
}

// OwedBytes sums unsettled byte obligations.
func (f *FakeOrderRepo) OwedBytes(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owed int64
	for _, o := range f.Sellers {
		if o.IsActive {
			owed += o.ByteAmount
		}
	}
	for _, o := range f.Buyers {
		if !o.IsActive && o.ExecutionDate == nil && o.ByteAmount != nil {
			owed += *o.ByteAmount
		}
	}
	return owed, nil
}

// OwedSatoshis sums unsettled satoshi obligations.
func (f *FakeOrderRepo) OwedSatoshis(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var owed int64
	for _, o := range f.Buyers {
		if o.IsActive {
			owed += o.SatoshiAmount
		}
	}
	for _, o := range f.Sellers {
		if !o.IsActive && o.ExecutionDate == nil && o.SatoshiAmount != nil {
			owed += *o.SatoshiAmount
		}
	}
	return owed, nil
}

func (f *FakeOrderRepo) payoutAddress(deviceAddress string) string {
	if f.PayoutAddress != nil {
		return f.PayoutAddress(deviceAddress)
	}
	return "payout-" + deviceAddress
}

// PendingBuyerPayouts lists matched buy orders awaiting their bytes.
func (f *FakeOrderRepo) PendingBuyerPayouts(ctx context.Context) ([]settlementv1.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []settlementv1.Obligation
	for _, o := range f.Buyers {
		if !o.IsActive && o.MatchDate != nil && o.ExecutionDate == nil {
			out = append(out, settlementv1.Obligation{
				Kind:          settlementv1.KindBookBytes,
				SourceID:      o.ID,
				DeviceAddress: o.DeviceAddress,
				ToAddress:     f.payoutAddress(o.DeviceAddress),
				Amount:        *o.ByteAmount,
			})
		}
	}
	return out, nil
}

// PendingSellerPayouts lists matched sell orders awaiting their satoshis.
func (f *FakeOrderRepo) PendingSellerPayouts(ctx context.Context) ([]settlementv1.Obligation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []settlementv1.Obligation
	for _, o := range f.Sellers {
		if !o.IsActive && o.MatchDate != nil && o.ExecutionDate == nil {
			out = append(out, settlementv1.Obligation{
				Kind:          settlementv1.KindBookBTC,
				SourceID:      o.ID,
				DeviceAddress: o.DeviceAddress,
				ToAddress:     f.payoutAddress(o.DeviceAddress),
				Amount:        *o.SatoshiAmount,
			})
		}
	}
	return out, nil
}

// InsertBuyerExecution records the buy payout attempt marker.
func (f *FakeOrderRepo) InsertBuyerExecution(ctx context.Context, orderID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BuyerExecutions[orderID] {
		return false, nil
	}
	f.BuyerExecutions[orderID] = true
	return true, nil
}

// InsertSellerExecution records the sell payout attempt marker.
func (f *FakeOrderRepo) InsertSellerExecution(ctx context.Context, orderID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SellerExecutions[orderID] {
		return false, nil
	}
	f.SellerExecutions[orderID] = true
	return true, nil
}

// StampBuyerExecuted finalizes a buy payout.
func (f *FakeOrderRepo) StampBuyerExecuted(ctx context.Context, orderID int64, unit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.Buyers {
		if o.ID == orderID {
			now := f.tick()
			o.ExecutionDate = &now
			o.Unit = &unit
			return nil
		}
	}
	return errNotActive(orderID)
}

// StampSellerExecuted finalizes a sell payout.
func (f *FakeOrderRepo) StampSellerExecuted(ctx context.Context, orderID int64, txid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.Sellers {
		if o.ID == orderID {
			now := f.tick()
			o.ExecutionDate = &now
			o.Txid = &txid
			return nil
		}
	}
	return errNotActive(orderID)
}

func copyBuyers(in []*orderv1.BuyerOrder) []*orderv1.BuyerOrder {
	out := make([]*orderv1.BuyerOrder, len(in))
	for i, o := range in {
		cp := *o
		out[i] = &cp
	}
	return out
}

func copySellers(in []*orderv1.SellerOrder) []*orderv1.SellerOrder {
	out := make([]*orderv1.SellerOrder, len(in))
	for i, o := range in {
		cp := *o
		out[i] = &cp
	}
	return out
}

type fakeError struct{ msg string }

func (e fakeError) Error() string { return e.msg }

func errNotActive(id int64) error {
	return fakeError{msg: "order not found or not active"}
}

// FakeDepositRepo is an in-memory deposit repository.
type FakeDepositRepo struct {
	mu     sync.Mutex
	nextID int64

	BuyerDeposits  map[int64]*depositv1.BuyerDeposit
	SellerDeposits map[int64]*depositv1.SellerDeposit

	// Ripe holds the deposits returned by the Ripe* queries; dispatch
	// tests fill these directly.
	RipeBuyers  []depositv1.PendingBuyerDeposit
	RipeSellers []depositv1.PendingSellerDeposit
}

// NewFakeDepositRepo creates an empty deposit store.
func NewFakeDepositRepo() *FakeDepositRepo {
	return &FakeDepositRepo{
		BuyerDeposits:  make(map[int64]*depositv1.BuyerDeposit),
		SellerDeposits: make(map[int64]*depositv1.SellerDeposit),
	}
}

// AddBuyerDeposit seeds an unconsumed buyer deposit and returns its id.
func (f *FakeDepositRepo) AddBuyerDeposit(satoshiAmount int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.BuyerDeposits[f.nextID] = &depositv1.BuyerDeposit{ID: f.nextID, SatoshiAmount: satoshiAmount}
	return f.nextID
}

// AddSellerDeposit seeds an unconsumed seller deposit and returns its id.
func (f *FakeDepositRepo) AddSellerDeposit(byteAmount int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.SellerDeposits[f.nextID] = &depositv1.SellerDeposit{ID: f.nextID, ByteAmount: byteAmount}
	return f.nextID
}

// UpsertBuyerDeposit records or refreshes a BTC deposit.
func (f *FakeDepositRepo) UpsertBuyerDeposit(ctx context.Context, bindingID int64, txid string, satoshiAmount int64, countConfirmations int) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.BuyerDeposits {
		if d.BindingID == bindingID && d.Txid == txid {
			if countConfirmations > d.CountConfirmations {
				d.CountConfirmations = countConfirmations
			}
			return d.ID, false, nil
		}
	}
	f.nextID++
	f.BuyerDeposits[f.nextID] = &depositv1.BuyerDeposit{
		ID:                 f.nextID,
		BindingID:          bindingID,
		Txid:               txid,
		SatoshiAmount:      satoshiAmount,
		CountConfirmations: countConfirmations,
	}
	return f.nextID, true, nil
}

// InsertSellerDeposit records a bytes deposit.
func (f *FakeDepositRepo) InsertSellerDeposit(ctx context.Context, bindingID int64, unit string, byteAmount int64, isStable bool) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.SellerDeposits {
		if d.BindingID == bindingID && d.Unit == unit {
			return d.ID, false, nil
		}
	}
	f.nextID++
	f.SellerDeposits[f.nextID] = &depositv1.SellerDeposit{
		ID:         f.nextID,
		BindingID:  bindingID,
		Unit:       unit,
		ByteAmount: byteAmount,
		IsStable:   isStable,
	}
	return f.nextID, true, nil
}

// MarkSellerDepositStable flips finality for a unit.
func (f *FakeDepositRepo) MarkSellerDepositStable(ctx context.Context, unit string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for _, d := range f.SellerDeposits {
		if d.Unit == unit && !d.IsStable {
			d.IsStable = true
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

// RipeBuyerDeposits returns the seeded ripe buyer deposits.
func (f *FakeDepositRepo) RipeBuyerDeposits(ctx context.Context, minConfirmations int) ([]depositv1.PendingBuyerDeposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.RipeBuyers
	f.RipeBuyers = nil
	return out, nil
}

// RipeSellerDeposits returns the seeded ripe seller deposits.
func (f *FakeDepositRepo) RipeSellerDeposits(ctx context.Context) ([]depositv1.PendingSellerDeposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.RipeSellers
	f.RipeSellers = nil
	return out, nil
}

// FinishBuyerDeposit records the fee split of a consumed buyer deposit.
func (f *FakeDepositRepo) FinishBuyerDeposit(ctx context.Context, depositID, feeSatoshis, netSatoshis int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.BuyerDeposits[depositID]
	if !ok {
		d = &depositv1.BuyerDeposit{ID: depositID}
		f.BuyerDeposits[depositID] = d
	}
	if d.ConfirmationDate != nil {
		return errors.NewErrorDetails("buyer deposit already consumed",
			string(errors.DuplicateAttempt), "finish_buyer_deposit")
	}
	now := time.Now()
	d.ConfirmationDate = &now
	d.FeeSatoshiAmount = &feeSatoshis
	d.NetSatoshiAmount = &netSatoshis
	return nil
}

// FinishSellerDeposit records the fee split of a consumed seller deposit.
func (f *FakeDepositRepo) FinishSellerDeposit(ctx context.Context, depositID, feeBytes, netBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.SellerDeposits[depositID]
	if !ok {
		d = &depositv1.SellerDeposit{ID: depositID}
		f.SellerDeposits[depositID] = d
	}
	if d.FinalityDate != nil {
		return errors.NewErrorDetails("seller deposit already consumed",
			string(errors.DuplicateAttempt), "finish_seller_deposit")
	}
	now := time.Now()
	d.FinalityDate = &now
	d.FeeByteAmount = &feeBytes
	d.NetByteAmount = &netBytes
	return nil
}

// FakePriceRepo is an in-memory price intent repository.
type FakePriceRepo struct {
	mu         sync.Mutex
	BuyPrices  map[string]*float64
	SellPrices map[string]*float64
}

// NewFakePriceRepo creates an empty intent store.
func NewFakePriceRepo() *FakePriceRepo {
	return &FakePriceRepo{
		BuyPrices:  make(map[string]*float64),
		SellPrices: make(map[string]*float64),
	}
}

// GetPrices returns the participant's intents.
func (f *FakePriceRepo) GetPrices(ctx context.Context, deviceAddress string) (*float64, *float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.BuyPrices[deviceAddress], f.SellPrices[deviceAddress], nil
}

// SetBuyPrice upserts the buy intent.
func (f *FakePriceRepo) SetBuyPrice(ctx context.Context, deviceAddress string, price *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BuyPrices[deviceAddress] = price
	return nil
}

// SetSellPrice upserts the sell intent.
func (f *FakePriceRepo) SetSellPrice(ctx context.Context, deviceAddress string, price *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SellPrices[deviceAddress] = price
	return nil
}

// FakeAliasRepo is an in-memory alias registry.
type FakeAliasRepo struct {
	mu      sync.Mutex
	byAlias map[string]string
	byDev   map[string]string
}

// NewFakeAliasRepo creates an empty registry.
func NewFakeAliasRepo() *FakeAliasRepo {
	return &FakeAliasRepo{
		byAlias: make(map[string]string),
		byDev:   make(map[string]string),
	}
}

// Set records that alias may act for deviceAddress.
func (f *FakeAliasRepo) Set(ctx context.Context, deviceAddress, alias string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byAlias[alias] = deviceAddress
	f.byDev[deviceAddress] = alias
	return nil
}

// Remove drops the alias registered for a device.
func (f *FakeAliasRepo) Remove(ctx context.Context, deviceAddress string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if alias, ok := f.byDev[deviceAddress]; ok {
		delete(f.byAlias, alias)
		delete(f.byDev, deviceAddress)
	}
	return nil
}

// GetByDevice returns the alias acting for a device, or "".
func (f *FakeAliasRepo) GetByDevice(ctx context.Context, deviceAddress string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byDev[deviceAddress], nil
}

// ResolveDevice returns the device an alias acts for, or "".
func (f *FakeAliasRepo) ResolveDevice(ctx context.Context, alias string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byAlias[alias], nil
}

// FakeBindingRepo is an in-memory binding registry.
type FakeBindingRepo struct {
	mu      sync.Mutex
	nextID  int64
	Buyers  []*bindingv1.BuyerBinding
	Sellers []*bindingv1.SellerBinding
}

// NewFakeBindingRepo creates an empty registry.
func NewFakeBindingRepo() *FakeBindingRepo {
	return &FakeBindingRepo{}
}

// GetBuyerBinding looks up a binding by its (device, payout) pair.
func (f *FakeBindingRepo) GetBuyerBinding(ctx context.Context, deviceAddress, outByteballAddress string) (*bindingv1.BuyerBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.Buyers {
		if b.DeviceAddress == deviceAddress && b.OutByteballAddress == outByteballAddress {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

// InsertBuyerBinding records a new buyer binding.
func (f *FakeBindingRepo) InsertBuyerBinding(ctx context.Context, deviceAddress, outByteballAddress, toBitcoinAddress string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.Buyers = append(f.Buyers, &bindingv1.BuyerBinding{
		ID:                 f.nextID,
		DeviceAddress:      deviceAddress,
		OutByteballAddress: outByteballAddress,
		ToBitcoinAddress:   toBitcoinAddress,
	})
	return f.nextID, nil
}

// GetSellerBinding looks up a binding by its (device, payout) pair.
func (f *FakeBindingRepo) GetSellerBinding(ctx context.Context, deviceAddress, outBitcoinAddress string) (*bindingv1.SellerBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.Sellers {
		if b.DeviceAddress == deviceAddress && b.OutBitcoinAddress == outBitcoinAddress {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

// InsertSellerBinding records a new seller binding.
func (f *FakeBindingRepo) InsertSellerBinding(ctx context.Context, deviceAddress, outBitcoinAddress, toByteballAddress string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.Sellers = append(f.Sellers, &bindingv1.SellerBinding{
		ID:                f.nextID,
		DeviceAddress:     deviceAddress,
		OutBitcoinAddress: outBitcoinAddress,
		ToByteballAddress: toByteballAddress,
	})
	return f.nextID, nil
}

// BuyerBindingByBitcoinAddress resolves the binding of a deposit address.
func (f *FakeBindingRepo) BuyerBindingByBitcoinAddress(ctx context.Context, toBitcoinAddress string) (*bindingv1.BuyerBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.Buyers {
		if b.ToBitcoinAddress == toBitcoinAddress {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

// SellerBindingByByteballAddress resolves the binding of a deposit address.
func (f *FakeBindingRepo) SellerBindingByByteballAddress(ctx context.Context, toByteballAddress string) (*bindingv1.SellerBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.Sellers {
		if b.ToByteballAddress == toByteballAddress {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

// FakeCursorRepo is an in-memory rescan cursor.
type FakeCursorRepo struct {
	mu    sync.Mutex
	Block string
}

// LastBlock returns the stored cursor.
func (f *FakeCursorRepo) LastBlock(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Block, nil
}

// SetLastBlock stores the cursor.
func (f *FakeCursorRepo) SetLastBlock(ctx context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Block = hash
	return nil
}
