package domain

import (
	"fmt"
	"strings"
	"time"
)

// Action is the planned operation of one hour.
type Action uint8

const (
	ActionIdle Action = iota
	ActionCharge
	ActionDischarge
)

const (
	ActionIdleStr      = "idle"
	ActionChargeStr    = "charge"
	ActionDischargeStr = "discharge"
)

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return ActionIdleStr
	case ActionCharge:
		return ActionChargeStr
	case ActionDischarge:
		return ActionDischargeStr
	default:
		return fmt.Sprintf("unknown(%d)", a)
	}
}

// Code is the one letter representation used by the hourly plan sensor.
func (a Action) Code() byte {
	switch a {
	case ActionCharge:
		return 'C'
	case ActionDischarge:
		return 'D'
	default:
		return '-'
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case ActionIdleStr:
		*a = ActionIdle
	case ActionChargeStr:
		*a = ActionCharge
	case ActionDischargeStr:
		*a = ActionDischarge
	default:
		return fmt.Errorf("invalid action %q", string(text))
	}
	return nil
}

// BatteryMode is the action the executor reports as happening now.
func (a Action) BatteryMode() BatteryMode {
	switch a {
	case ActionCharge:
		return BatteryModeCharging
	case ActionDischarge:
		return BatteryModeDischarging
	default:
		return BatteryModeIdle
	}
}

type HourlyAction struct {
	Hour        int     `json:"hour"`
	Action      Action  `json:"action"`
	Price       float64 `json:"price"`
	PriceKnown  bool    `json:"priceKnown"`
	EnergyKWh   float64 `json:"energyKWh"`
	SocStartPct float64 `json:"socStartPct"`
	SocEndPct   float64 `json:"socEndPct"`
	Cost        float64 `json:"cost"`
	Revenue     float64 `json:"revenue"`
}

// Plan is the immutable 24 hour schedule produced by one optimization run.
type Plan struct {
	day                time.Time
	hours              [HOURS_PER_DAY]HourlyAction
	expectedBenefit    float64
	chargeHours        []int
	dischargeHours     []int
	initialSocPct      float64
	finalSocPct        float64
	totalChargedKWh    float64
	totalDischargedKWh float64
}

type PlanParams struct {
	Day             time.Time
	Hours           [HOURS_PER_DAY]HourlyAction
	ExpectedBenefit float64
	InitialSocPct   float64
}

// NewPlan derives the hour sets and totals from the hourly actions.
func NewPlan(params PlanParams) *Plan {
	p := &Plan{
		day:             startOfDay(params.Day),
		hours:           params.Hours,
		expectedBenefit: params.ExpectedBenefit,
		initialSocPct:   params.InitialSocPct,
	}
	for i := range p.hours {
		h := p.hours[i]
		switch h.Action {
		case ActionCharge:
			p.chargeHours = append(p.chargeHours, h.Hour)
			p.totalChargedKWh += h.EnergyKWh
		case ActionDischarge:
			p.dischargeHours = append(p.dischargeHours, h.Hour)
			p.totalDischargedKWh += h.EnergyKWh
		}
	}
	p.finalSocPct = p.hours[HOURS_PER_DAY-1].SocEndPct
	return p
}

func (p *Plan) Day() time.Time {
	return p.day
}

func (p *Plan) Hours() []HourlyAction {
	cp := make([]HourlyAction, HOURS_PER_DAY)
	copy(cp, p.hours[:])
	return cp
}

func (p *Plan) At(hour int) HourlyAction {
	if hour < 0 || hour >= HOURS_PER_DAY {
		return HourlyAction{Hour: hour, Action: ActionIdle}
	}
	return p.hours[hour]
}

func (p *Plan) ActionAt(hour int) Action {
	return p.At(hour).Action
}

func (p *Plan) ExpectedBenefit() float64 {
	return p.expectedBenefit
}

func (p *Plan) ChargeHours() []int {
	return append(make([]int, 0, len(p.chargeHours)), p.chargeHours...)
}

func (p *Plan) DischargeHours() []int {
	return append(make([]int, 0, len(p.dischargeHours)), p.dischargeHours...)
}

func (p *Plan) InitialSocPct() float64 {
	return p.initialSocPct
}

func (p *Plan) FinalSocPct() float64 {
	return p.finalSocPct
}

func (p *Plan) TotalChargedKWh() float64 {
	return p.totalChargedKWh
}

func (p *Plan) TotalDischargedKWh() float64 {
	return p.totalDischargedKWh
}

// IsFor reports whether the plan targets the local day of t.
func (p *Plan) IsFor(t time.Time) bool {
	return p.day.Equal(startOfDay(t.In(p.day.Location())))
}

// NextChange returns the first hour after the given hour whose action differs from current.
func (p *Plan) NextChange(hour int, current Action) (Action, int, bool) {
	for h := hour + 1; h < HOURS_PER_DAY; h++ {
		if p.hours[h].Action != current {
			return p.hours[h].Action, h, true
		}
	}
	return current, -1, false
}

// Codes renders the plan as one letter per hour, e.g. "CC--DD...".
func (p *Plan) Codes() string {
	var sb strings.Builder
	for i := range p.hours {
		sb.WriteByte(p.hours[i].Action.Code())
	}
	return sb.String()
}

// PlanView is the serializable form of a plan.
type PlanView struct {
	Day                time.Time      `json:"day"`
	Hours              []HourlyAction `json:"hours"`
	Codes              string         `json:"codes"`
	ExpectedBenefit    float64        `json:"expectedBenefit"`
	ChargeHours        []int          `json:"chargeHours"`
	DischargeHours     []int          `json:"dischargeHours"`
	InitialSocPct      float64        `json:"initialSocPct"`
	FinalSocPct        float64        `json:"finalSocPct"`
	TotalChargedKWh    float64        `json:"totalChargedKWh"`
	TotalDischargedKWh float64        `json:"totalDischargedKWh"`
}

func (p *Plan) View() PlanView {
	return PlanView{
		Day:                p.day,
		Hours:              p.Hours(),
		Codes:              p.Codes(),
		ExpectedBenefit:    p.expectedBenefit,
		ChargeHours:        p.ChargeHours(),
		DischargeHours:     p.DischargeHours(),
		InitialSocPct:      p.initialSocPct,
		FinalSocPct:        p.finalSocPct,
		TotalChargedKWh:    p.totalChargedKWh,
		TotalDischargedKWh: p.totalDischargedKWh,
	}
}
