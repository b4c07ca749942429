package port

import (
	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
)

type Planner interface {
	Plan(prices domain.PriceSeries, battery domain.BatteryModel, currentSocPct float64) (*domain.Plan, error)
}
