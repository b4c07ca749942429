package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/berfenger/spotcharge2mqtt/internal/core/domain"
	"github.com/berfenger/spotcharge2mqtt/internal/core/port"

	"go.uber.org/zap"
)

const energyEpsilonKWh = 1e-9

// GreedyPlanner picks the cheapest hours to charge and the most expensive hours to discharge.
// It is not a global optimizer.
type GreedyPlanner struct {
	Logger *zap.Logger
	// ProfitGuard skips discharge hours whose price after losses does not beat the charge price.
	ProfitGuard bool
}

func NewGreedyPlanner(logger *zap.Logger) *GreedyPlanner {
	return &GreedyPlanner{Logger: logger, ProfitGuard: true}
}

func (p *GreedyPlanner) WithProfitGuard(enabled bool) *GreedyPlanner {
	p.ProfitGuard = enabled
	return p
}

type plannerHour struct {
	hour  int
	price float64
}

func (p *GreedyPlanner) Plan(prices domain.PriceSeries, battery domain.BatteryModel, currentSocPct float64) (*domain.Plan, error) {

	if err := battery.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(currentSocPct) || math.IsInf(currentSocPct, 0) {
		return nil, &domain.ConstraintViolationError{Reason: fmt.Sprintf("invalid current soc %v", currentSocPct)}
	}
	currentSocPct = math.Max(0, math.Min(100, currentSocPct))

	today := prices.Today()
	if valid := today.ValidCount(); valid < domain.HOURS_PER_DAY {
		return nil, &domain.InsufficientDataError{Valid: valid, Required: domain.HOURS_PER_DAY}
	}

	var hours [domain.HOURS_PER_DAY]domain.HourlyAction
	var eligible []plannerHour
	for h := range hours {
		price := today.At(h)
		hours[h] = domain.HourlyAction{
			Hour:       h,
			Action:     domain.ActionIdle,
			Price:      price.Value,
			PriceKnown: price.Known,
		}
		if price.Known {
			eligible = append(eligible, plannerHour{hour: h, price: price.Value})
		}
	}

	if battery.MinSocPct == battery.MaxSocPct {
		p.log().Debug("planner: empty soc window, idle plan")
		return p.idlePlan(today, hours, battery, currentSocPct), nil
	}
	if allPricesEqual(eligible) {
		p.log().Debug("planner: flat price curve, idle plan")
		return p.idlePlan(today, hours, battery, currentSocPct), nil
	}

	// energy stored at the end of each hour, in kWh
	var socEnd [domain.HOURS_PER_DAY]float64
	initialKWh := battery.SocToKWh(currentSocPct)
	for h := range socEnd {
		socEnd[h] = initialKWh
	}

	// charge: cheapest first, earlier hour on ties
	byPriceAsc := append([]plannerHour(nil), eligible...)
	sort.SliceStable(byPriceAsc, func(i, j int) bool {
		if byPriceAsc[i].price != byPriceAsc[j].price {
			return byPriceAsc[i].price < byPriceAsc[j].price
		}
		return byPriceAsc[i].hour < byPriceAsc[j].hour
	})

	headroom := battery.SocToKWh(battery.MaxSocPct) - initialKWh
	selected := make(map[int]bool)
	chargeCount := 0
	referencePrice := math.Inf(-1)
	for _, c := range byPriceAsc {
		if chargeCount >= battery.ChargeHoursTarget || headroom <= energyEpsilonKWh {
			break
		}
		energy := math.Min(battery.ChargeKWhPerHour(), headroom)
		headroom -= energy
		hours[c.hour].Action = domain.ActionCharge
		hours[c.hour].EnergyKWh = energy
		hours[c.hour].Cost = c.price * energy
		for t := c.hour; t < domain.HOURS_PER_DAY; t++ {
			socEnd[t] += energy
		}
		selected[c.hour] = true
		chargeCount++
		referencePrice = math.Max(referencePrice, c.price)
	}
	if chargeCount == 0 {
		// stored energy is valued at the cheapest price of the day
		referencePrice = byPriceAsc[0].price
	}

	// discharge: most expensive first, later hour on ties
	var remaining []plannerHour
	for _, c := range eligible {
		if !selected[c.hour] {
			remaining = append(remaining, c)
		}
	}
	sort.SliceStable(remaining, func(i, j int) bool {
		if remaining[i].price != remaining[j].price {
			return remaining[i].price > remaining[j].price
		}
		return remaining[i].hour > remaining[j].hour
	})

	efficiency := battery.Efficiency()
	minKWh := battery.SocToKWh(battery.MinSocPct)
	dischargeCount := 0
	for _, c := range remaining {
		if dischargeCount >= battery.DischargeHoursTarget {
			break
		}
		if p.ProfitGuard && c.price*efficiency <= referencePrice {
			// sorted descending: nothing below pays back either
			break
		}
		slack := math.Inf(1)
		for t := c.hour; t < domain.HOURS_PER_DAY; t++ {
			slack = math.Min(slack, socEnd[t]-minKWh)
		}
		if slack <= energyEpsilonKWh {
			continue
		}
		energy := math.Min(battery.DischargeKWhPerHour(), slack)
		hours[c.hour].Action = domain.ActionDischarge
		hours[c.hour].EnergyKWh = energy
		hours[c.hour].Revenue = c.price * energy * efficiency
		for t := c.hour; t < domain.HOURS_PER_DAY; t++ {
			socEnd[t] -= energy
		}
		dischargeCount++
	}

	benefit := 0.0
	prevKWh := initialKWh
	for h := range hours {
		hours[h].SocStartPct = battery.KWhToSoc(prevKWh)
		hours[h].SocEndPct = battery.KWhToSoc(socEnd[h])
		prevKWh = socEnd[h]
		benefit += hours[h].Revenue - hours[h].Cost
	}

	plan := domain.NewPlan(domain.PlanParams{
		Day:             today.Day,
		Hours:           hours,
		ExpectedBenefit: benefit,
		InitialSocPct:   currentSocPct,
	})
	if err := checkPlan(plan, battery); err != nil {
		return nil, err
	}

	p.log().Debug("planner: plan ready",
		zap.Ints("charge", plan.ChargeHours()),
		zap.Ints("discharge", plan.DischargeHours()),
		zap.Float64("benefit", benefit))

	return plan, nil
}

func (p *GreedyPlanner) idlePlan(today domain.PriceSeries, hours [domain.HOURS_PER_DAY]domain.HourlyAction,
	battery domain.BatteryModel, currentSocPct float64) *domain.Plan {
	for h := range hours {
		hours[h].SocStartPct = currentSocPct
		hours[h].SocEndPct = currentSocPct
	}
	return domain.NewPlan(domain.PlanParams{
		Day:             today.Day,
		Hours:           hours,
		ExpectedBenefit: 0,
		InitialSocPct:   currentSocPct,
	})
}

func (p *GreedyPlanner) log() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func allPricesEqual(hours []plannerHour) bool {
	for i := 1; i < len(hours); i++ {
		if hours[i].price != hours[0].price {
			return false
		}
	}
	return true
}

// checkPlan rejects plans that break the hour targets or the soc window.
func checkPlan(plan *domain.Plan, battery domain.BatteryModel) error {
	const socEpsilonPct = 1e-6
	if n := len(plan.ChargeHours()); n > battery.ChargeHoursTarget {
		return &domain.ConstraintViolationError{Reason: fmt.Sprintf("%d charge hours exceed target %d", n, battery.ChargeHoursTarget)}
	}
	if n := len(plan.DischargeHours()); n > battery.DischargeHoursTarget {
		return &domain.ConstraintViolationError{Reason: fmt.Sprintf("%d discharge hours exceed target %d", n, battery.DischargeHoursTarget)}
	}
	for _, h := range plan.Hours() {
		if h.Action == domain.ActionIdle {
			continue
		}
		if !h.PriceKnown {
			return &domain.ConstraintViolationError{Reason: fmt.Sprintf("hour %d has no known price", h.Hour)}
		}
		if h.Action == domain.ActionCharge && h.SocEndPct > battery.MaxSocPct+socEpsilonPct {
			return &domain.ConstraintViolationError{Reason: fmt.Sprintf("charge at hour %d exceeds max soc (%.2f%%)", h.Hour, h.SocEndPct)}
		}
		if h.Action == domain.ActionDischarge && h.SocEndPct < battery.MinSocPct-socEpsilonPct {
			return &domain.ConstraintViolationError{Reason: fmt.Sprintf("discharge at hour %d drops below min soc (%.2f%%)", h.Hour, h.SocEndPct)}
		}
	}
	return nil
}

// ensure interface compliance
var _ port.Planner = (*GreedyPlanner)(nil)
