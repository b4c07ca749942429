package domain

import (
	"time"
)

const HOURS_PER_DAY = 24

// Price is the energy price of a single hour. Unknown hours carry Known=false.
type Price struct {
	Value float64
	Known bool
}

var UnknownPrice = Price{}

func KnownPrice(value float64) Price {
	return Price{Value: value, Known: true}
}

// PriceSeries holds 24 (today) or 48 (today + tomorrow) hourly prices starting at Day.
type PriceSeries struct {
	Day    time.Time
	prices []Price
}

func NewPriceSeries(day time.Time, prices []Price) PriceSeries {
	cp := make([]Price, len(prices))
	copy(cp, prices)
	return PriceSeries{
		Day:    startOfDay(day),
		prices: cp,
	}
}

// PriceSeriesFromValues builds a complete series from plain values.
func PriceSeriesFromValues(day time.Time, values []float64) PriceSeries {
	prices := make([]Price, len(values))
	for i, v := range values {
		prices[i] = KnownPrice(v)
	}
	return NewPriceSeries(day, prices)
}

func (s PriceSeries) Len() int {
	return len(s.prices)
}

// At returns the price for the given hour offset from the start of the series.
func (s PriceSeries) At(hour int) Price {
	if hour < 0 || hour >= len(s.prices) {
		return UnknownPrice
	}
	return s.prices[hour]
}

func (s PriceSeries) Prices() []Price {
	cp := make([]Price, len(s.prices))
	copy(cp, s.prices)
	return cp
}

// Today returns the first day of the series, padded with unknown hours if shorter.
func (s PriceSeries) Today() PriceSeries {
	return s.window(0, s.Day)
}

// Tomorrow returns the second day of the series when the series has any data for it.
func (s PriceSeries) Tomorrow() (PriceSeries, bool) {
	if len(s.prices) <= HOURS_PER_DAY {
		return PriceSeries{}, false
	}
	tomorrow := s.window(HOURS_PER_DAY, s.Day.AddDate(0, 0, 1))
	return tomorrow, tomorrow.ValidCount() > 0
}

func (s PriceSeries) window(offset int, day time.Time) PriceSeries {
	prices := make([]Price, HOURS_PER_DAY)
	for i := range prices {
		prices[i] = s.At(offset + i)
	}
	return PriceSeries{Day: day, prices: prices}
}

// ValidCount returns the number of hours with a known price.
func (s PriceSeries) ValidCount() int {
	n := 0
	for _, p := range s.prices {
		if p.Known {
			n++
		}
	}
	return n
}

// IsComplete reports whether every hour of the first day has a known price.
func (s PriceSeries) IsComplete() bool {
	return s.Today().ValidCount() == HOURS_PER_DAY
}

// Equal compares two series value by value.
func (s PriceSeries) Equal(other PriceSeries) bool {
	if !s.Day.Equal(other.Day) || len(s.prices) != len(other.prices) {
		return false
	}
	for i := range s.prices {
		if s.prices[i] != other.prices[i] {
			return false
		}
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	return startOfDay(t)
}
