package rates

import (
	"context"

	instantv1 "github.com/byteball/btc-exchange/internal/domain/instant/v1"
)

// RatesMirror publishes exchange quotes to the public read path.
type RatesMirror interface {
	PublishRates(ctx context.Context, r instantv1.Rates) error
	PublishTopOfBook(ctx context.Context, bid, ask *float64) error
}
