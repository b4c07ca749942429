package pricefile

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const DAY_LAYOUT = "2006-01-02"

// Sheet is the on-disk price sheet. Null entries are unknown hours.
//
//	day: 2024-10-01
//	today: [0.31, 0.29, null, ...]
//	tomorrow: [0.25, ...]
type Sheet struct {
	Day      string     `yaml:"day"`
	Today    []*float64 `yaml:"today"`
	Tomorrow []*float64 `yaml:"tomorrow"`
}

// Provider reads the price sheet on every call so edits are picked up by the price watcher.
type Provider struct {
	path   string
	clock  func() time.Time
	logger *zap.Logger
}

func NewProvider(path string, clock func() time.Time, logger *zap.Logger) *Provider {
	if clock == nil {
		clock = time.Now
	}
	return &Provider{
		path:   path,
		clock:  clock,
		logger: logger.With(zap.String("prices", path)),
	}
}

func Load(path string) (*Sheet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sheet Sheet
	if err := yaml.Unmarshal(raw, &sheet); err != nil {
		return nil, fmt.Errorf("parse price sheet %s: %w", path, err)
	}
	if len(sheet.Today) > domain.HOURS_PER_DAY || len(sheet.Tomorrow) > domain.HOURS_PER_DAY {
		return nil, fmt.Errorf("price sheet %s: more than %d hours in a day", path, domain.HOURS_PER_DAY)
	}
	if err := checkFinite("today", sheet.Today); err != nil {
		return nil, fmt.Errorf("price sheet %s: %w", path, err)
	}
	if err := checkFinite("tomorrow", sheet.Tomorrow); err != nil {
		return nil, fmt.Errorf("price sheet %s: %w", path, err)
	}
	return &sheet, nil
}

func checkFinite(section string, values []*float64) error {
	for hour, v := range values {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s hour %d: price %v is not a number", section, hour, *v)
		}
	}
	return nil
}

func (p *Provider) GetPrices(ctx context.Context) (domain.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return domain.PriceSeries{}, err
	}
	sheet, err := Load(p.path)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	today := domain.StartOfDay(p.clock())
	series, err := sheet.Series(today)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	p.logger.Debug("pricefile: prices read", zap.Int("valid", series.ValidCount()))
	return series, nil
}

// Series aligns the sheet to today. A sheet written yesterday still serves its tomorrow section;
// any other day yields an all-unknown series.
func (s *Sheet) Series(today time.Time) (domain.PriceSeries, error) {
	first, second := s.Today, s.Tomorrow
	if s.Day != "" {
		day, err := time.ParseInLocation(DAY_LAYOUT, s.Day, today.Location())
		if err != nil {
			return domain.PriceSeries{}, fmt.Errorf("invalid price sheet day %q: %w", s.Day, err)
		}
		switch {
		case day.Equal(today):
		case day.AddDate(0, 0, 1).Equal(today):
			first, second = s.Tomorrow, nil
		default:
			first, second = nil, nil
		}
	}
	size := domain.HOURS_PER_DAY
	if len(second) > 0 {
		size = 2 * domain.HOURS_PER_DAY
	}
	prices := make([]domain.Price, size)
	fill(prices[:domain.HOURS_PER_DAY], first)
	if len(second) > 0 {
		fill(prices[domain.HOURS_PER_DAY:], second)
	}
	return domain.NewPriceSeries(today, prices), nil
}

func fill(dst []domain.Price, values []*float64) {
	for i := range dst {
		if i < len(values) && values[i] != nil {
			dst[i] = domain.KnownPrice(*values[i])
		} else {
			dst[i] = domain.UnknownPrice
		}
	}
}

var _ port.PriceProvider = (*Provider)(nil)
