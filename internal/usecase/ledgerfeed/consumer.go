package ledgerfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/byteball/btc-exchange/internal/gateway/messaging"
	bindingrepo "github.com/byteball/btc-exchange/internal/infrastructure/postgres/binding"
	depositrepo "github.com/byteball/btc-exchange/internal/infrastructure/postgres/deposit"
	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/keylock"
	"github.com/byteball/btc-exchange/pkg/logger"
)

// writeLock is held by the wallet node's ledger writer; passing the
// barrier guarantees the stability flag is visible before dispatching.
const writeLock = "write"

// Event is one ledger notification published by the wallet node.
type Event struct {
	Type       string `json:"type"`
	Unit       string `json:"unit"`
	Address    string `json:"address"`
	ByteAmount int64  `json:"byte_amount"`
}

const (
	// EventDeposit announces bytes credited to a watched address.
	EventDeposit = "deposit"
	// EventStable announces that a unit reached finality.
	EventStable = "stable"
)

// RipeDispatcher routes deposits that became tradable after finality.
type RipeDispatcher interface {
	ProcessRipeSellerDeposits(ctx context.Context) error
}

// Consumer reads ledger events from the wallet node's topic and records
// byte deposits.
type Consumer struct {
	kafkaReader *kafka.Reader
	bindings    bindingrepo.BindingRepository
	deposits    depositrepo.DepositRepository
	dispatcher  RipeDispatcher
	locks       *keylock.Table
	messenger   messaging.DeviceMessenger
	logger      logger.Interface
}

// NewConsumer creates the ledger feed consumer.
func NewConsumer(
	cfg config.KafkaConfig,
	bindings bindingrepo.BindingRepository,
	deposits depositrepo.DepositRepository,
	dispatcher RipeDispatcher,
	locks *keylock.Table,
	messenger messaging.DeviceMessenger,
	logger logger.Interface,
) *Consumer {
	kafkaReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.EventsTopic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &Consumer{
		kafkaReader: kafkaReader,
		bindings:    bindings,
		deposits:    deposits,
		dispatcher:  dispatcher,
		locks:       locks,
		messenger:   messenger,
		logger:      logger,
	}
}

// Run consumes events until the context is canceled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, err := c.kafkaReader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.ErrorContext(ctx, err)
			continue
		}

		var event Event
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.ErrorContext(ctx, err,
				logger.Field{Key: "offset", Value: msg.Offset})
			continue
		}

		if err := c.handle(ctx, event); err != nil {
			c.logger.ErrorContext(ctx, err,
				logger.Field{Key: "unit", Value: event.Unit},
				logger.Field{Key: "type", Value: event.Type},
			)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, event Event) error {
	switch event.Type {
	case EventDeposit:
		return c.handleDeposit(ctx, event)
	case EventStable:
		return c.handleStable(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown ledger event type",
			logger.Field{Key: "type", Value: event.Type})
		return nil
	}
}

func (c *Consumer) handleDeposit(ctx context.Context, event Event) error {
	binding, err := c.bindings.SellerBindingByByteballAddress(ctx, event.Address)
	if err != nil {
		return err
	}
	if binding == nil {
		return nil
	}

	depositID, inserted, err := c.deposits.InsertSellerDeposit(ctx, binding.ID, event.Unit, event.ByteAmount, false)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	c.logger.InfoContext(ctx, "new byte deposit",
		logger.Field{Key: "deposit_id", Value: depositID},
		logger.Field{Key: "unit", Value: event.Unit},
		logger.Field{Key: "bytes", Value: event.ByteAmount},
	)
	if err := c.messenger.SendText(ctx, binding.DeviceAddress, fmt.Sprintf(
		"Received your payment of %d bytes, waiting for finality.", event.ByteAmount)); err != nil {
		c.logger.ErrorContext(ctx, err,
			logger.Field{Key: "device_address", Value: binding.DeviceAddress})
	}
	return nil
}

func (c *Consumer) handleStable(ctx context.Context, event Event) error {
	if err := c.locks.Barrier(ctx, writeLock); err != nil {
		return err
	}

	ids, err := c.deposits.MarkSellerDepositStable(ctx, event.Unit)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return c.dispatcher.ProcessRipeSellerDeposits(ctx)
}

// Close properly closes the Kafka reader.
func (c *Consumer) Close() error {
	return c.kafkaReader.Close()
}
