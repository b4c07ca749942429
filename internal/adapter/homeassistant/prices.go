package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rawPrice struct {
	Hour  time.Time        `json:"hour"`
	Price *decimal.Decimal `json:"price"`
}

// PriceSensor reads hourly prices from the raw_today/raw_tomorrow attributes of a price sensor.
type PriceSensor struct {
	client   *Client
	entityId string
	clock    func() time.Time
	logger   *zap.Logger
}

func NewPriceSensor(client *Client, entityId string, clock func() time.Time, logger *zap.Logger) *PriceSensor {
	if clock == nil {
		clock = time.Now
	}
	return &PriceSensor{
		client:   client,
		entityId: entityId,
		clock:    clock,
		logger:   logger.With(zap.String("entity", entityId)),
	}
}

func (p *PriceSensor) GetPrices(ctx context.Context) (domain.PriceSeries, error) {
	state, err := p.client.GetState(ctx, p.entityId)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	var entries []rawPrice
	for _, attr := range []string{"raw_today", "raw_tomorrow"} {
		raw, ok := state.Attributes[attr]
		if !ok || string(raw) == "null" {
			continue
		}
		var values []rawPrice
		if err := json.Unmarshal(raw, &values); err != nil {
			return domain.PriceSeries{}, fmt.Errorf("parse %s: %w", attr, err)
		}
		entries = append(entries, values...)
	}
	series := bucketPrices(domain.StartOfDay(p.clock()), entries)
	p.logger.Debug("homeassistant: prices read", zap.Int("entries", len(entries)), zap.Int("valid", series.ValidCount()))
	return series, nil
}

// bucketPrices averages the entries of each local hour of today and tomorrow. Hours without
// entries are unknown. The series only covers tomorrow when at least one of its hours is known.
func bucketPrices(day time.Time, entries []rawPrice) domain.PriceSeries {
	sums := make([]decimal.Decimal, 2*domain.HOURS_PER_DAY)
	counts := make([]int64, 2*domain.HOURS_PER_DAY)
	hasTomorrow := false
	for _, e := range entries {
		if e.Price == nil || e.Hour.IsZero() {
			continue
		}
		idx := hourIndex(day, e.Hour.In(day.Location()))
		if idx < 0 || idx >= len(sums) {
			continue
		}
		sums[idx] = sums[idx].Add(*e.Price)
		counts[idx]++
		if idx >= domain.HOURS_PER_DAY {
			hasTomorrow = true
		}
	}
	size := domain.HOURS_PER_DAY
	if hasTomorrow {
		size = 2 * domain.HOURS_PER_DAY
	}
	prices := make([]domain.Price, size)
	for i := range prices {
		if counts[i] == 0 {
			prices[i] = domain.UnknownPrice
			continue
		}
		avg := sums[i].Div(decimal.NewFromInt(counts[i]))
		prices[i] = domain.KnownPrice(avg.InexactFloat64())
	}
	return domain.NewPriceSeries(day, prices)
}

// hourIndex uses wall clock hours so DST days still map onto 24 slots.
func hourIndex(day time.Time, t time.Time) int {
	return calendarDays(day, t)*domain.HOURS_PER_DAY + t.Hour()
}

func calendarDays(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

var _ port.PriceProvider = (*PriceSensor)(nil)
