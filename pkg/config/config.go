package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/byteball/btc-exchange/pkg/postgresql"
	"github.com/byteball/btc-exchange/pkg/redis"
)

// Config represents the application configuration.
type Config struct {
	App      AppConfig         `envPrefix:"APP_"`
	Postgres postgresql.Config `envPrefix:"POSTGRES_"`
	Redis    redis.Config      `envPrefix:"REDIS_"`
	Kafka    KafkaConfig       `envPrefix:"KAFKA_"`
	Bitcoin  BitcoinConfig     `envPrefix:"BITCOIN_"`
	Wallet   WalletConfig      `envPrefix:"WALLET_"`
	Mail     MailConfig        `envPrefix:"MAIL_"`
	Exchange ExchangeConfig    `envPrefix:"EXCHANGE_"`
}

// AppConfig represents the application configuration.
type AppConfig struct {
	Name        string `env:"NAME" envDefault:"btc-exchange"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// KafkaConfig represents the Kafka configuration. DeviceTopic carries
// outbound chat messages to participants, EventsTopic carries ledger
// events from the wallet node, CommandsTopic carries inbound participant
// commands.
type KafkaConfig struct {
	Brokers       []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	DeviceTopic   string   `env:"DEVICE_TOPIC" envDefault:"device-messages"`
	EventsTopic   string   `env:"EVENTS_TOPIC" envDefault:"ledger-events"`
	CommandsTopic string   `env:"COMMANDS_TOPIC" envDefault:"exchange-commands"`
	ConsumerGroup string   `env:"CONSUMER_GROUP" envDefault:"btc-exchange"`
}

// BitcoinConfig represents the bitcoind JSON-RPC configuration.
type BitcoinConfig struct {
	Host     string `env:"HOST" envDefault:"localhost:8332"`
	User     string `env:"USER" envDefault:"bitcoin"`
	Password string `env:"PASSWORD"`
	Testnet  bool   `env:"TESTNET" envDefault:"false"`
}

// WalletConfig represents the headless wallet JSON-RPC configuration.
type WalletConfig struct {
	URL     string        `env:"URL" envDefault:"http://localhost:6332"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// MailConfig represents the SMTP configuration for operator alerts.
type MailConfig struct {
	Host       string `env:"HOST" envDefault:"localhost"`
	Port       int    `env:"PORT" envDefault:"25"`
	Username   string `env:"USERNAME"`
	Password   string `env:"PASSWORD"`
	FromEmail  string `env:"FROM_EMAIL" envDefault:"exchange@localhost"`
	AdminEmail string `env:"ADMIN_EMAIL" envDefault:"admin@localhost"`
}

// ExchangeConfig holds the trading parameters. Prices are quoted in BTC
// per GB throughout.
type ExchangeConfig struct {
	// Fee is the commission taken from every deposit before it trades.
	Fee float64 `env:"FEE" envDefault:"0.002"`
	// InstantMargin widens instant quotes away from the book's edge.
	InstantMargin float64 `env:"INSTANT_MARGIN" envDefault:"0.02"`
	// MaxBTC and MaxGB bound the book depth walked when deriving
	// instant rates. Whatever fits inside these bounds sets the quote.
	MaxBTC float64 `env:"MAX_BTC" envDefault:"0.2"`
	MaxGB  float64 `env:"MAX_GB" envDefault:"10"`
	// SafeBuyRate and SafeSellRate are the conservative fallback quotes
	// used when a book side is empty.
	SafeBuyRate  float64 `env:"SAFE_BUY_RATE" envDefault:"0.04"`
	SafeSellRate float64 `env:"SAFE_SELL_RATE" envDefault:"0.01"`
	// RateTick is the rounding increment for published instant rates.
	RateTick float64 `env:"RATE_TICK" envDefault:"0.0001"`

	MinConfirmations int `env:"MIN_CONFIRMATIONS" envDefault:"2"`
	// MinSatoshis and MinBytes are the smallest deposits accepted.
	// Anything below is kept as a donation.
	MinSatoshis int64 `env:"MIN_SATOSHIS" envDefault:"200000"`
	MinBytes    int64 `env:"MIN_BYTES" envDefault:"300000000"`

	RescanInterval   time.Duration `env:"RESCAN_INTERVAL" envDefault:"10s"`
	SolvencyInterval time.Duration `env:"SOLVENCY_INTERVAL" envDefault:"10s"`
}

// Load loads the configuration from the environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
