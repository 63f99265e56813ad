package rates

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	instantv1 "github.com/byteball/btc-exchange/internal/domain/instant/v1"
	"github.com/byteball/btc-exchange/pkg/errors"
)

const (
	ratesKey   = "exchange:rates"
	bookTopKey = "exchange:book:top"
)

// Mirror publishes the current instant rates to Redis so the public site
// can read them without touching the exchange database.
type Mirror struct {
	redis redis.Cmdable
}

// NewMirror creates a rates mirror.
func NewMirror(redis redis.Cmdable) *Mirror {
	return &Mirror{redis: redis}
}

// PublishRates writes the instant quotes. Unquoted sides are removed so
// readers do not serve a stale rate.
func (m *Mirror) PublishRates(ctx context.Context, r instantv1.Rates) error {
	fields := map[string]any{
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	var stale []string

	if r.BuyRate != nil {
		fields["buy_rate"] = strconv.FormatFloat(*r.BuyRate, 'f', -1, 64)
	} else {
		stale = append(stale, "buy_rate")
	}
	if r.SellRate != nil {
		fields["sell_rate"] = strconv.FormatFloat(*r.SellRate, 'f', -1, 64)
	} else {
		stale = append(stale, "sell_rate")
	}

	if err := m.redis.HSet(ctx, ratesKey, fields).Err(); err != nil {
		return errors.NewErrorDetails(err.Error(), string(errors.RedisPublishError), ratesKey)
	}
	if len(stale) > 0 {
		if err := m.redis.HDel(ctx, ratesKey, stale...).Err(); err != nil {
			return errors.NewErrorDetails(err.Error(), string(errors.RedisPublishError), ratesKey)
		}
	}
	return nil
}

// PublishTopOfBook writes the best resting bid and ask prices.
func (m *Mirror) PublishTopOfBook(ctx context.Context, bid, ask *float64) error {
	fields := map[string]any{
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	var stale []string

	if bid != nil {
		fields["bid"] = strconv.FormatFloat(*bid, 'f', -1, 64)
	} else {
		stale = append(stale, "bid")
	}
	if ask != nil {
		fields["ask"] = strconv.FormatFloat(*ask, 'f', -1, 64)
	} else {
		stale = append(stale, "ask")
	}

	if err := m.redis.HSet(ctx, bookTopKey, fields).Err(); err != nil {
		return errors.NewErrorDetails(err.Error(), string(errors.RedisPublishError), bookTopKey)
	}
	if len(stale) > 0 {
		if err := m.redis.HDel(ctx, bookTopKey, stale...).Err(); err != nil {
			return errors.NewErrorDetails(err.Error(), string(errors.RedisPublishError), bookTopKey)
		}
	}
	return nil
}
