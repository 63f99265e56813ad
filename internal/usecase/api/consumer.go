package api

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/logger"
)

// inbound is the wire format of the commands topic: the wallet node wraps
// each structured chat message with its sender.
type inbound struct {
	FromAddress string          `json:"from_address"`
	Object      json.RawMessage `json:"object"`
}

// Consumer feeds the API usecase from the commands topic.
type Consumer struct {
	kafkaReader *kafka.Reader
	api         *Usecase
	logger      logger.Interface
}

// NewConsumer creates the commands consumer.
func NewConsumer(cfg config.KafkaConfig, api *Usecase, logger logger.Interface) *Consumer {
	kafkaReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.CommandsTopic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	return &Consumer{
		kafkaReader: kafkaReader,
		api:         api,
		logger:      logger,
	}
}

// Run consumes commands until the context is canceled.
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

		var in inbound
		if err := json.Unmarshal(msg.Value, &in); err != nil {
			c.logger.ErrorContext(ctx, err,
				logger.Field{Key: "offset", Value: msg.Offset})
			continue
		}
		if in.FromAddress == "" || len(in.Object) == 0 {
			c.logger.WarnContext(ctx, "malformed command envelope",
				logger.Field{Key: "offset", Value: msg.Offset})
			continue
		}

		c.api.HandleObject(ctx, in.FromAddress, in.Object)
	}
}

// Close properly closes the Kafka reader.
func (c *Consumer) Close() error {
	return c.kafkaReader.Close()
}
