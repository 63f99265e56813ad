package book

import (
	"context"
	"fmt"
	"math"

	orderv1 "github.com/byteball/btc-exchange/internal/domain/order/v1"
	"github.com/byteball/btc-exchange/internal/events"
	"github.com/byteball/btc-exchange/internal/gateway/messaging"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/deposit"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/order"
	"github.com/byteball/btc-exchange/internal/infrastructure/postgres/price"
	"github.com/byteball/btc-exchange/pkg/errors"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
	"github.com/byteball/btc-exchange/pkg/postgresql"
)

// matchLock serializes every mutation of the resting book.
const matchLock = "match"

// Usecase runs the resting book: order placement, the matching loop and
// participant price updates.
type Usecase struct {
	orders     order.OrderRepository
	deposits   deposit.DepositRepository
	prices     price.PriceRepository
	tx         postgresql.TxRunner
	locks      *keylock.Table
	messenger  messaging.DeviceMessenger
	dispatcher *events.Dispatcher
	logger     logger.Interface
	fee        float64
}

// NewUsecase creates the book usecase.
func NewUsecase(
	orders order.OrderRepository,
	deposits deposit.DepositRepository,
	prices price.PriceRepository,
	tx postgresql.TxRunner,
	locks *keylock.Table,
	messenger messaging.DeviceMessenger,
	dispatcher *events.Dispatcher,
	logger logger.Interface,
	fee float64,
) *Usecase {
	return &Usecase{
		orders:     orders,
		deposits:   deposits,
		prices:     prices,
		tx:         tx,
		locks:      locks,
		messenger:  messenger,
		dispatcher: dispatcher,
		logger:     logger,
		fee:        fee,
	}
}

// feeSplit returns the commission and the tradable remainder of a deposit.
func (u *Usecase) feeSplit(gross int64) (fee, net int64) {
	fee = int64(math.Round(float64(gross) * u.fee))
	return fee, gross - fee
}

// InsertBuyerOrder converts a confirmed BTC deposit into a resting buy
// order at the given price. Must run inside a transaction under the match
// lock.
func (u *Usecase) InsertBuyerOrder(ctx context.Context, depositID int64, deviceAddress string, satoshiAmount int64, orderPrice float64) (int64, error) {
	if orderPrice <= 0 || satoshiAmount <= 0 {
		return 0, errors.NewErrorDetails("buy order needs positive price and amount",
			string(errors.InvariantViolation), "insert_buyer_order")
	}

	fee, net := u.feeSplit(satoshiAmount)
	if err := u.deposits.FinishBuyerDeposit(ctx, depositID, fee, net); err != nil {
		return 0, err
	}

	orderID, err := u.orders.InsertBuyer(ctx, depositID, deviceAddress, net, orderPrice)
	if err != nil {
		return 0, err
	}

	u.notify(ctx, deviceAddress, fmt.Sprintf(
		"Added your order: buy GB at %v BTC/GB for %d satoshis (fee %d satoshis).",
		orderPrice, net, fee))
	return orderID, nil
}

// InsertSellerOrder converts a final bytes deposit into a resting sell
// order at the given price. Must run inside a transaction under the match
// lock.
func (u *Usecase) InsertSellerOrder(ctx context.Context, depositID int64, deviceAddress string, byteAmount int64, orderPrice float64) (int64, error) {
	if orderPrice <= 0 || byteAmount <= 0 {
		return 0, errors.NewErrorDetails("sell order needs positive price and amount",
			string(errors.InvariantViolation), "insert_seller_order")
	}

	fee, net := u.feeSplit(byteAmount)
	if err := u.deposits.FinishSellerDeposit(ctx, depositID, fee, net); err != nil {
		return 0, err
	}

	orderID, err := u.orders.InsertSeller(ctx, depositID, deviceAddress, net, orderPrice)
	if err != nil {
		return 0, err
	}

	u.notify(ctx, deviceAddress, fmt.Sprintf(
		"Added your order: sell %d bytes at %v BTC/GB (fee %d bytes).",
		net, orderPrice, fee))
	return orderID, nil
}

// Match crosses the book until the sides no longer overlap. Must run inside
// a transaction under the match lock; the whole pass commits or rolls back
// as one.
func (u *Usecase) Match(ctx context.Context) error {
	for {
		buyer, err := u.orders.BestBuyer(ctx)
		if err != nil {
			return err
		}
		seller, err := u.orders.BestSeller(ctx)
		if err != nil {
			return err
		}
		if buyer == nil || seller == nil {
			return nil
		}
		if seller.Price > buyer.Price {
			return nil
		}

		if buyer.IsExecuted() || seller.IsExecuted() {
			return errors.NewErrorDetails("best active order carries execution columns",
				string(errors.InvariantViolation), "match")
		}

		if err := u.cross(ctx, buyer, seller); err != nil {
			return err
		}
	}
}

// cross executes one trade between the two best orders. The older order's
// price wins; ties go to the seller.
func (u *Usecase) cross(ctx context.Context, buyer *orderv1.BuyerOrder, seller *orderv1.SellerOrder) error {
	execPrice := seller.Price
	if buyer.LastUpdate.Before(seller.LastUpdate) {
		execPrice = buyer.Price
	}

	buyerBytes, err := orderv1.SatoshisToBytes(buyer.SatoshiAmount, execPrice)
	if err != nil {
		return err
	}

	var transactedSatoshis, transactedBytes int64
	switch {
	case buyerBytes > seller.ByteAmount:
		// Seller fully consumed, buyer keeps a remainder.
		transactedBytes = seller.ByteAmount
		transactedSatoshis, err = orderv1.BytesToSatoshis(seller.ByteAmount, execPrice)
		if err != nil {
			return err
		}
	case buyerBytes < seller.ByteAmount:
		// Buyer fully consumed, seller keeps a remainder.
		transactedBytes = buyerBytes
		transactedSatoshis = buyer.SatoshiAmount
	default:
		transactedBytes = seller.ByteAmount
		transactedSatoshis = buyer.SatoshiAmount
	}

	props := orderv1.MatchProps{
		ExecutionPrice:     execPrice,
		TransactedSatoshis: transactedSatoshis,
		TransactedBytes:    transactedBytes,
	}

	buyerProps := props
	buyerProps.OppositeOrderID = &seller.ID
	if err := u.orders.MarkBuyerMatched(ctx, buyer.ID, buyerProps); err != nil {
		return err
	}

	sellerProps := props
	sellerProps.OppositeOrderID = &buyer.ID
	if err := u.orders.MarkSellerMatched(ctx, seller.ID, sellerProps); err != nil {
		return err
	}

	if remainder := buyer.SatoshiAmount - transactedSatoshis; remainder > 0 {
		if _, err := u.orders.InsertBuyerRemainder(ctx, buyer, remainder); err != nil {
			return err
		}
	} else if remainder < 0 {
		return errors.NewErrorDetails("buyer sold more satoshis than deposited",
			string(errors.InvariantViolation), "match")
	}

	if remainder := seller.ByteAmount - transactedBytes; remainder > 0 {
		if _, err := u.orders.InsertSellerRemainder(ctx, seller, remainder); err != nil {
			return err
		}
	} else if remainder < 0 {
		return errors.NewErrorDetails("seller sold more bytes than deposited",
			string(errors.InvariantViolation), "match")
	}

	u.logger.InfoContext(ctx, "matched orders",
		logger.Field{Key: "buyer_order_id", Value: buyer.ID},
		logger.Field{Key: "seller_order_id", Value: seller.ID},
		logger.Field{Key: "price", Value: execPrice},
		logger.Field{Key: "satoshis", Value: transactedSatoshis},
		logger.Field{Key: "bytes", Value: transactedBytes},
	)

	u.notify(ctx, buyer.DeviceAddress, fmt.Sprintf(
		"Your buy order executed: bought %d bytes at %v BTC/GB.", transactedBytes, execPrice))
	u.notify(ctx, seller.DeviceAddress, fmt.Sprintf(
		"Your sell order executed: sold %d bytes at %v BTC/GB.", transactedBytes, execPrice))

	return nil
}

// MatchUnderLock runs a matching pass in its own transaction under the
// match lock, then announces the book change. The lock is released before
// the announcement so the listeners never stall order placement.
func (u *Usecase) MatchUnderLock(ctx context.Context) error {
	release, err := u.locks.Lock(ctx, matchLock)
	if err != nil {
		return err
	}

	if err := u.tx.InTransaction(ctx, u.Match); err != nil {
		release()
		return err
	}
	release()

	u.dispatcher.EmitBookChanged(ctx)
	return nil
}

// UpdateBuyPrice records the participant's buy intent. A nil price clears
// the limit without touching resting orders; a real price moves every
// active buy order there, drops their time priority and retries matching.
func (u *Usecase) UpdateBuyPrice(ctx context.Context, deviceAddress string, newPrice *float64) error {
	if newPrice == nil {
		return u.prices.SetBuyPrice(ctx, deviceAddress, nil)
	}
	if *newPrice <= 0 {
		return errors.NewErrorDetails("buy price must be positive",
			string(errors.GeneralBadRequestError), "price")
	}

	release, err := u.locks.Lock(ctx, matchLock)
	if err != nil {
		return err
	}

	err = u.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := u.prices.SetBuyPrice(ctx, deviceAddress, newPrice); err != nil {
			return err
		}
		moved, err := u.orders.RepriceBuyers(ctx, deviceAddress, *newPrice)
		if err != nil {
			return err
		}
		if moved > 0 {
			u.logger.InfoContext(ctx, "repriced buy orders",
				logger.Field{Key: "device_address", Value: deviceAddress},
				logger.Field{Key: "price", Value: *newPrice},
				logger.Field{Key: "orders", Value: moved},
			)
		}
		return u.Match(ctx)
	})
	release()
	if err != nil {
		return err
	}

	u.dispatcher.EmitBookChanged(ctx)
	return nil
}

// UpdateSellPrice records the participant's sell intent, mirroring
// UpdateBuyPrice on the other side.
func (u *Usecase) UpdateSellPrice(ctx context.Context, deviceAddress string, newPrice *float64) error {
	if newPrice == nil {
		return u.prices.SetSellPrice(ctx, deviceAddress, nil)
	}
	if *newPrice <= 0 {
		return errors.NewErrorDetails("sell price must be positive",
			string(errors.GeneralBadRequestError), "price")
	}

	release, err := u.locks.Lock(ctx, matchLock)
	if err != nil {
		return err
	}

	err = u.tx.InTransaction(ctx, func(ctx context.Context) error {
		if err := u.prices.SetSellPrice(ctx, deviceAddress, newPrice); err != nil {
			return err
		}
		moved, err := u.orders.RepriceSellers(ctx, deviceAddress, *newPrice)
		if err != nil {
			return err
		}
		if moved > 0 {
			u.logger.InfoContext(ctx, "repriced sell orders",
				logger.Field{Key: "device_address", Value: deviceAddress},
				logger.Field{Key: "price", Value: *newPrice},
				logger.Field{Key: "orders", Value: moved},
			)
		}
		return u.Match(ctx)
	})
	release()
	if err != nil {
		return err
	}

	u.dispatcher.EmitBookChanged(ctx)
	return nil
}

// GetOrders returns the participant's open orders, best first per side.
func (u *Usecase) GetOrders(ctx context.Context, deviceAddress string) ([]*orderv1.BuyerOrder, []*orderv1.SellerOrder, error) {
	buyers, err := u.orders.ActiveBuyersByDevice(ctx, deviceAddress)
	if err != nil {
		return nil, nil, err
	}
	sellers, err := u.orders.ActiveSellersByDevice(ctx, deviceAddress)
	if err != nil {
		return nil, nil, err
	}
	return buyers, sellers, nil
}

// GetBookLevels returns the aggregated depth of both sides.
func (u *Usecase) GetBookLevels(ctx context.Context) ([]orderv1.Level, error) {
	return u.orders.BookLevels(ctx)
}

// notify sends a best-effort chat message. Delivery failures are logged,
// they never abort the enclosing transaction.
func (u *Usecase) notify(ctx context.Context, deviceAddress, text string) {
	if err := u.messenger.SendText(ctx, deviceAddress, text); err != nil {
		u.logger.ErrorContext(ctx, err,
			logger.Field{Key: "device_address", Value: deviceAddress})
	}
}
