package instant

import (
	"context"
	"fmt"
	"math"
	"sync"

	instantv1 "github.com/byteball/btc-exchange/internal/domain/instant/v1"
	orderv1 "github.com/byteball/btc-exchange/internal/domain/order/v1"
	"github.com/byteball/btc-exchange/internal/gateway/mail"
	"github.com/byteball/btc-exchange/internal/gateway/messaging"
	"github.com/byteball/btc-exchange/internal/gateway/rates"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/instantdeal"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/order"
	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/errors"
	"github.com/byteball/btc-exchange/pkg/logger"
)

// BookWriter is the slice of the book usecase the instant engine needs to
// park deposits it cannot fill.
type BookWriter interface {
	InsertBuyerOrder(ctx context.Context, depositID int64, deviceAddress string, satoshiAmount int64, orderPrice float64) (int64, error)
	InsertSellerOrder(ctx context.Context, depositID int64, deviceAddress string, byteAmount int64, orderPrice float64) (int64, error)
}

// DepositFinisher closes deposits consumed by instant deals.
type DepositFinisher interface {
	FinishBuyerDeposit(ctx context.Context, depositID, feeSatoshis, netSatoshis int64) error
	FinishSellerDeposit(ctx context.Context, depositID, feeBytes, netBytes int64) error
}

// Usecase quotes instant rates off the resting book and fills deposits
// against it immediately. Rates are quoted from the customer's
// perspective: BuyRate is what they pay per GB, SellRate is what they get.
type Usecase struct {
	orders    order.OrderRepository
	deals     instantdeal.InstantDealRepository
	deposits  DepositFinisher
	book      BookWriter
	messenger messaging.DeviceMessenger
	notifier  mail.OperatorNotifier
	mirror    rates.RatesMirror
	logger    logger.Interface
	cfg       config.ExchangeConfig

	// mu guards the standing rates. Recomputes are serialized by the
	// book-changed emitter; reads happen on deposit handling paths.
	mu       sync.RWMutex
	buyRate  float64
	sellRate float64
}

// NewUsecase creates the instant engine with the conservative safe rates
// as the starting quotes.
func NewUsecase(
	orders order.OrderRepository,
	deals instantdeal.InstantDealRepository,
	deposits DepositFinisher,
	book BookWriter,
	messenger messaging.DeviceMessenger,
	notifier mail.OperatorNotifier,
	mirror rates.RatesMirror,
	logger logger.Interface,
	cfg config.ExchangeConfig,
) *Usecase {
	return &Usecase{
		orders:    orders,
		deals:     deals,
		deposits:  deposits,
		book:      book,
		messenger: messenger,
		notifier:  notifier,
		mirror:    mirror,
		logger:    logger,
		cfg:       cfg,
		buyRate:   cfg.SafeBuyRate,
		sellRate:  cfg.SafeSellRate,
	}
}

// Rates returns the standing quotes.
func (u *Usecase) Rates() instantv1.Rates {
	u.mu.RLock()
	defer u.mu.RUnlock()
	buy, sell := u.buyRate, u.sellRate
	return instantv1.Rates{BuyRate: &buy, SellRate: &sell}
}

// roundToTick snaps a rate to the publishing increment.
func (u *Usecase) roundToTick(rate float64) float64 {
	return math.Round(rate/u.cfg.RateTick) * u.cfg.RateTick
}

// UpdateRates rederives both quotes from the current book depth and
// mirrors them to Redis. The quote is set off the marginal price at which
// the depth threshold is reached; a book too shallow to absorb the
// threshold degrades to the most conservative price seen and alerts the
// operator.
func (u *Usecase) UpdateRates(ctx context.Context) {
	buyRate := u.deriveBuyRate(ctx)
	sellRate := u.deriveSellRate(ctx)

	u.mu.Lock()
	if buyRate != nil {
		u.buyRate = *buyRate
	}
	if sellRate != nil {
		u.sellRate = *sellRate
	}
	published := instantv1.Rates{BuyRate: &u.buyRate, SellRate: &u.sellRate}
	u.mu.Unlock()

	if err := u.mirror.PublishRates(ctx, published); err != nil {
		u.logger.ErrorContext(ctx, err)
	}
}

// deriveBuyRate walks the sell side cheapest-first until MaxGB of depth is
// accumulated. Returns nil when the book could not be read.
func (u *Usecase) deriveBuyRate(ctx context.Context) *float64 {
	sellers, err := u.orders.ActiveSellers(ctx)
	if err != nil {
		u.logger.ErrorContext(ctx, err)
		return nil
	}

	var accumulatedBytes int64
	maxPrice := u.cfg.SafeBuyRate
	for _, o := range sellers {
		if o.Price > maxPrice {
			maxPrice = o.Price
		}
		accumulatedBytes += o.ByteAmount
		if float64(accumulatedBytes) >= u.cfg.MaxGB*1e9 {
			rate := u.roundToTick(o.Price * (1 + u.cfg.InstantMargin))
			return &rate
		}
	}

	u.notifier.NotifyOperator("not enough sell-side liquidity",
		fmt.Sprintf("sell-side depth is %d bytes, below the %v GB threshold", accumulatedBytes, u.cfg.MaxGB))
	return &maxPrice
}

// deriveSellRate walks the buy side best-first until MaxBTC of depth is
// accumulated.
func (u *Usecase) deriveSellRate(ctx context.Context) *float64 {
	buyers, err := u.orders.ActiveBuyers(ctx)
	if err != nil {
		u.logger.ErrorContext(ctx, err)
		return nil
	}

	var accumulatedSatoshis int64
	minPrice := u.cfg.SafeSellRate
	for _, o := range buyers {
		if o.Price < minPrice {
			minPrice = o.Price
		}
		accumulatedSatoshis += o.SatoshiAmount
		if float64(accumulatedSatoshis) >= u.cfg.MaxBTC*1e8 {
			rate := u.roundToTick(o.Price / (1 + u.cfg.InstantMargin))
			return &rate
		}
	}

	u.notifier.NotifyOperator("not enough buy-side liquidity",
		fmt.Sprintf("buy-side depth is %d satoshis, below the %v BTC threshold", accumulatedSatoshis, u.cfg.MaxBTC))
	return &minPrice
}

// HandleInstantBuyOrder fills a confirmed BTC deposit against the sell
// side at the standing buy rate. If the book cannot cover the full amount
// the deposit becomes a resting buy order at that rate instead. Must run
// inside a transaction under the match lock.
func (u *Usecase) HandleInstantBuyOrder(ctx context.Context, depositID int64, satoshiAmount int64, deviceAddress string) error {
	u.mu.RLock()
	rate := u.buyRate
	u.mu.RUnlock()

	byteAmount, err := orderv1.SatoshisToBytes(satoshiAmount, rate)
	if err != nil {
		return err
	}

	sellers, err := u.orders.ActiveSellersAtOrBelow(ctx, rate)
	if err != nil {
		return err
	}
	fill, err := planBuyFill(sellers, byteAmount)
	if err != nil {
		if !errors.ErrorCodeEquals(err, string(errors.LiquidityShortfall)) {
			return err
		}
		if _, err := u.book.InsertBuyerOrder(ctx, depositID, deviceAddress, satoshiAmount, rate); err != nil {
			return err
		}
		u.notify(ctx, deviceAddress,
			"Your payment is now confirmed but there's not enough liquidity to complete the exchange.  We'll exchange your bitcoins as soon as possible.")
		return nil
	}

	// Instant deals take no commission, the margin in the rate is the fee.
	if err := u.deposits.FinishBuyerDeposit(ctx, depositID, 0, satoshiAmount); err != nil {
		return err
	}
	dealID, err := u.deals.InsertBuyerDeal(ctx, depositID, satoshiAmount, byteAmount, rate)
	if err != nil {
		return err
	}

	consumed := make(map[int64]bool, len(fill.ConsumedOrderIDs))
	for _, id := range fill.ConsumedOrderIDs {
		consumed[id] = true
	}
	for _, sellerOrder := range sellers {
		var transactedBytes int64
		switch {
		case consumed[sellerOrder.ID]:
			transactedBytes = sellerOrder.ByteAmount
		case fill.Remainder != nil && fill.Remainder.OrderID == sellerOrder.ID:
			transactedBytes = fill.Remainder.TransactedBytes
		default:
			continue
		}
		transactedSatoshis, err := orderv1.BytesToSatoshis(transactedBytes, sellerOrder.Price)
		if err != nil {
			return err
		}
		props := orderv1.MatchProps{
			ExecutionPrice:     sellerOrder.Price,
			TransactedSatoshis: transactedSatoshis,
			TransactedBytes:    transactedBytes,
			InstantDealID:      &dealID,
		}
		if err := u.orders.MarkSellerMatched(ctx, sellerOrder.ID, props); err != nil {
			return err
		}
		if transactedBytes < sellerOrder.ByteAmount {
			if _, err := u.orders.InsertSellerRemainder(ctx, sellerOrder, sellerOrder.ByteAmount-transactedBytes); err != nil {
				return err
			}
		}
	}

	u.logger.InfoContext(ctx, "instant buy deal",
		logger.Field{Key: "deal_id", Value: dealID},
		logger.Field{Key: "satoshis", Value: satoshiAmount},
		logger.Field{Key: "bytes", Value: byteAmount},
		logger.Field{Key: "rate", Value: rate},
		logger.Field{Key: "consumed_orders", Value: len(fill.ConsumedOrderIDs)},
	)
	return nil
}

// planBuyFill walks sell orders cheapest-first and decides which of them an
// instant buy of byteAmount absorbs. Orders must already be filtered to the
// standing rate. Returns a coded liquidity-shortfall error when the depth
// cannot cover the amount.
func planBuyFill(sellers []*orderv1.SellerOrder, byteAmount int64) (instantv1.Fill, error) {
	var fill instantv1.Fill
	remaining := byteAmount
	for _, o := range sellers {
		if remaining <= 0 {
			break
		}
		transactedBytes := remaining
		if transactedBytes >= o.ByteAmount {
			transactedBytes = o.ByteAmount
			fill.ConsumedOrderIDs = append(fill.ConsumedOrderIDs, o.ID)
		}
		transactedSatoshis, err := orderv1.BytesToSatoshis(transactedBytes, o.Price)
		if err != nil {
			return instantv1.Fill{}, err
		}
		if transactedBytes < o.ByteAmount {
			fill.Remainder = &instantv1.PartialConsumption{
				OrderID:            o.ID,
				TransactedSatoshis: transactedSatoshis,
				TransactedBytes:    transactedBytes,
			}
		}
		fill.TransactedBytes += transactedBytes
		fill.TransactedSatoshis += transactedSatoshis
		remaining -= transactedBytes
	}
	if remaining > 0 {
		return instantv1.Fill{}, errors.NewErrorDetails("sell-side depth cannot cover the requested amount",
			string(errors.LiquidityShortfall), "instant_buy")
	}
	return fill, nil
}

// HandleInstantSellOrder fills a final bytes deposit against the buy side
// at the standing sell rate, or parks it as a resting sell order on a
// liquidity shortfall. Must run inside a transaction under the match lock.
func (u *Usecase) HandleInstantSellOrder(ctx context.Context, depositID int64, byteAmount int64, deviceAddress string) error {
	u.mu.RLock()
	rate := u.sellRate
	u.mu.RUnlock()

	satoshiAmount, err := orderv1.BytesToSatoshis(byteAmount, rate)
	if err != nil {
		return err
	}
	if satoshiAmount == 0 {
		return errors.NewErrorDetails("instant sell amount rounds to zero satoshis",
			string(errors.InvariantViolation), "instant_sell")
	}

	buyers, err := u.orders.ActiveBuyersAtOrAbove(ctx, rate)
	if err != nil {
		return err
	}
	fill, err := planSellFill(buyers, satoshiAmount)
	if err != nil {
		if !errors.ErrorCodeEquals(err, string(errors.LiquidityShortfall)) {
			return err
		}
		if _, err := u.book.InsertSellerOrder(ctx, depositID, deviceAddress, byteAmount, rate); err != nil {
			return err
		}
		u.notify(ctx, deviceAddress,
			"Your payment is now final but there's not enough liquidity to complete the exchange.  We'll exchange your bytes as soon as possible.")
		return nil
	}

	if err := u.deposits.FinishSellerDeposit(ctx, depositID, 0, byteAmount); err != nil {
		return err
	}
	dealID, err := u.deals.InsertSellerDeal(ctx, depositID, satoshiAmount, byteAmount, rate)
	if err != nil {
		return err
	}

	consumed := make(map[int64]bool, len(fill.ConsumedOrderIDs))
	for _, id := range fill.ConsumedOrderIDs {
		consumed[id] = true
	}
	for _, buyerOrder := range buyers {
		var transactedSatoshis int64
		switch {
		case consumed[buyerOrder.ID]:
			transactedSatoshis = buyerOrder.SatoshiAmount
		case fill.Remainder != nil && fill.Remainder.OrderID == buyerOrder.ID:
			transactedSatoshis = fill.Remainder.TransactedSatoshis
		default:
			continue
		}
		transactedBytes, err := orderv1.SatoshisToBytes(transactedSatoshis, buyerOrder.Price)
		if err != nil {
			return err
		}
		props := orderv1.MatchProps{
			ExecutionPrice:     buyerOrder.Price,
			TransactedSatoshis: transactedSatoshis,
			TransactedBytes:    transactedBytes,
			InstantDealID:      &dealID,
		}
		if err := u.orders.MarkBuyerMatched(ctx, buyerOrder.ID, props); err != nil {
			return err
		}
		if transactedSatoshis < buyerOrder.SatoshiAmount {
			if _, err := u.orders.InsertBuyerRemainder(ctx, buyerOrder, buyerOrder.SatoshiAmount-transactedSatoshis); err != nil {
				return err
			}
		}
	}

	u.logger.InfoContext(ctx, "instant sell deal",
		logger.Field{Key: "deal_id", Value: dealID},
		logger.Field{Key: "satoshis", Value: satoshiAmount},
		logger.Field{Key: "bytes", Value: byteAmount},
		logger.Field{Key: "rate", Value: rate},
		logger.Field{Key: "consumed_orders", Value: len(fill.ConsumedOrderIDs)},
	)
	return nil
}

// planSellFill mirrors planBuyFill on the buy side for an instant sell
// earning satoshiAmount.
func planSellFill(buyers []*orderv1.BuyerOrder, satoshiAmount int64) (instantv1.Fill, error) {
	var fill instantv1.Fill
	remaining := satoshiAmount
	for _, o := range buyers {
		if remaining <= 0 {
			break
		}
		transactedSatoshis := remaining
		if transactedSatoshis >= o.SatoshiAmount {
			transactedSatoshis = o.SatoshiAmount
			fill.ConsumedOrderIDs = append(fill.ConsumedOrderIDs, o.ID)
		}
		transactedBytes, err := orderv1.SatoshisToBytes(transactedSatoshis, o.Price)
		if err != nil {
			return instantv1.Fill{}, err
		}
		if transactedSatoshis < o.SatoshiAmount {
			fill.Remainder = &instantv1.PartialConsumption{
				OrderID:            o.ID,
				TransactedSatoshis: transactedSatoshis,
				TransactedBytes:    transactedBytes,
			}
		}
		fill.TransactedSatoshis += transactedSatoshis
		fill.TransactedBytes += transactedBytes
		remaining -= transactedSatoshis
	}
	if remaining > 0 {
		return instantv1.Fill{}, errors.NewErrorDetails("buy-side depth cannot cover the requested amount",
			string(errors.LiquidityShortfall), "instant_sell")
	}
	return fill, nil
}

func (u *Usecase) notify(ctx context.Context, deviceAddress, text string) {
	if err := u.messenger.SendText(ctx, deviceAddress, text); err != nil {
		u.logger.ErrorContext(ctx, err,
			logger.Field{Key: "device_address", Value: deviceAddress})
	}
}
