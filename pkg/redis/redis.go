package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/byteball/btc-exchange/pkg/errors"
)

// Config holds connection settings for the standalone Redis instance that
// mirrors the public exchange rates.
type Config struct {
	Addr            string        `env:"ADDR" envDefault:"localhost:6379"`
	Username        string        `env:"USERNAME"`
	Password        string        `env:"PASSWORD"`
	DB              int           `env:"DB" envDefault:"0"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`
	PoolSize        int           `env:"POOL_SIZE" envDefault:"10"`
	MaxRetries      int           `env:"MAX_RETRIES" envDefault:"3"`
	MinRetryBackoff time.Duration `env:"MIN_RETRY_BACKOFF" envDefault:"8ms"`
	MaxRetryBackoff time.Duration `env:"MAX_RETRY_BACKOFF" envDefault:"512ms"`
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, cfg Config) (redis.Cmdable, error) {
	if cfg.Addr == "" {
		return nil, errors.NewErrorDetails("Redis address is empty", string(errors.RedisPublishError), "addr")
	}
	if cfg.ConnectTimeout <= 0 {
		return nil, errors.NewErrorDetails("Invalid Redis connect timeout", string(errors.RedisPublishError), "connect_timeout")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
		DialTimeout:     cfg.ConnectTimeout,
		ReadTimeout:     cfg.ConnectTimeout,
		WriteTimeout:    cfg.ConnectTimeout,
		PoolSize:        cfg.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.TracerFromError(err)
	}

	return client, nil
}
