package port

import (
	"context"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
)

// PriceProvider returns today's prices, optionally followed by tomorrow's. Missing hours are unknown.
type PriceProvider interface {
	GetPrices(ctx context.Context) (domain.PriceSeries, error)
}
