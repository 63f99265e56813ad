package messaging

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"

	"github.com/byteball/btc-exchange/pkg/config"
	"github.com/byteball/btc-exchange/pkg/errors"
	"github.com/byteball/btc-exchange/pkg/logger"
)

// Envelope is the wire format for outbound device messages. The wallet
// node consumes the topic and relays the body to the device over the
// encrypted chat channel.
type Envelope struct {
	MessageID     string          `json:"message_id"`
	DeviceAddress string          `json:"device_address"`
	Type          string          `json:"type"`
	Text          string          `json:"text,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	SentAt        time.Time       `json:"sent_at"`
}

// Publisher writes device messages to the device topic.
type Publisher struct {
	kafkaWriter *kafka.Writer
	logger      logger.Interface

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewPublisher creates a Kafka publisher for device messages.
func NewPublisher(cfg config.KafkaConfig, logger logger.Interface) *Publisher {
	kafkaWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.DeviceTopic,
	})

	return &Publisher{
		kafkaWriter: kafkaWriter,
		logger:      logger,
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (p *Publisher) nextID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), p.entropy).String()
}

// SendText sends a plain chat message to a device.
func (p *Publisher) SendText(ctx context.Context, deviceAddress, text string) error {
	return p.publish(ctx, Envelope{
		MessageID:     p.nextID(),
		DeviceAddress: deviceAddress,
		Type:          "text",
		Text:          text,
		SentAt:        time.Now().UTC(),
	})
}

// SendObject sends a structured message, such as a payment notification,
// to a device.
func (p *Publisher) SendObject(ctx context.Context, deviceAddress, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.TracerFromError(err)
	}
	return p.publish(ctx, Envelope{
		MessageID:     p.nextID(),
		DeviceAddress: deviceAddress,
		Type:          msgType,
		Payload:       raw,
		SentAt:        time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, env Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return errors.TracerFromError(err)
	}

	msg := kafka.Message{
		// Keyed by device so each device's messages stay ordered.
		Key:   []byte(env.DeviceAddress),
		Value: value,
	}

	if err := p.kafkaWriter.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(err,
			logger.Field{Key: "device_address", Value: env.DeviceAddress},
			logger.Field{Key: "message_id", Value: env.MessageID},
		)
		return errors.NewErrorDetails(err.Error(), string(errors.MessagingError), "device_topic")
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.kafkaWriter.Close()
}
