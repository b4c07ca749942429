package domain

import "fmt"

const (
	DEFAULT_BATTERY_CAPACITY_KWH   = 10.0
	DEFAULT_CHARGE_POWER_W         = 2500
	DEFAULT_MAX_DISCHARGE_POWER_W  = 2500
	DEFAULT_ROUND_TRIP_EFFICIENCY  = 90.0
	DEFAULT_MIN_SOC_PCT            = 10.0
	DEFAULT_MAX_SOC_PCT            = 100.0
	DEFAULT_CHARGE_HOURS_TARGET    = 2
	DEFAULT_DISCHARGE_HOURS_TARGET = 5
	HOUR_DURATION_H                = 1.0
)

// BatteryModel describes the static constraints of the storage device.
type BatteryModel struct {
	CapacityKWh            float64 `mapstructure:"capacity_kwh" json:"capacityKWh"`
	ChargePowerW           uint32  `mapstructure:"charge_power_w" json:"chargePowerW"`
	MaxDischargePowerW     uint32  `mapstructure:"max_discharge_power_w" json:"maxDischargePowerW"`
	RoundTripEfficiencyPct float64 `mapstructure:"round_trip_efficiency_pct" json:"roundTripEfficiencyPct"`
	MinSocPct              float64 `mapstructure:"min_soc_pct" json:"minSocPct"`
	MaxSocPct              float64 `mapstructure:"max_soc_pct" json:"maxSocPct"`
	ChargeHoursTarget      int     `mapstructure:"charge_hours_target" json:"chargeHoursTarget"`
	DischargeHoursTarget   int     `mapstructure:"discharge_hours_target" json:"dischargeHoursTarget"`
}

func DefaultBatteryModel() BatteryModel {
	return BatteryModel{
		CapacityKWh:            DEFAULT_BATTERY_CAPACITY_KWH,
		ChargePowerW:           DEFAULT_CHARGE_POWER_W,
		MaxDischargePowerW:     DEFAULT_MAX_DISCHARGE_POWER_W,
		RoundTripEfficiencyPct: DEFAULT_ROUND_TRIP_EFFICIENCY,
		MinSocPct:              DEFAULT_MIN_SOC_PCT,
		MaxSocPct:              DEFAULT_MAX_SOC_PCT,
		ChargeHoursTarget:      DEFAULT_CHARGE_HOURS_TARGET,
		DischargeHoursTarget:   DEFAULT_DISCHARGE_HOURS_TARGET,
	}
}

// Validate checks the model bounds. min == max is accepted: it yields an all-idle plan.
func (b BatteryModel) Validate() error {
	if b.CapacityKWh <= 0 {
		return &ConstraintViolationError{Reason: fmt.Sprintf("capacity must be > 0, got %.3f kWh", b.CapacityKWh)}
	}
	if b.ChargePowerW == 0 {
		return &ConstraintViolationError{Reason: "charge power must be > 0"}
	}
	if b.MaxDischargePowerW == 0 {
		return &ConstraintViolationError{Reason: "max discharge power must be > 0"}
	}
	if b.RoundTripEfficiencyPct <= 0 || b.RoundTripEfficiencyPct > 100 {
		return &ConstraintViolationError{Reason: fmt.Sprintf("round trip efficiency must be in (0, 100], got %.2f", b.RoundTripEfficiencyPct)}
	}
	if b.MinSocPct < 0 || b.MaxSocPct > 100 || b.MinSocPct > b.MaxSocPct {
		return &ConstraintViolationError{Reason: fmt.Sprintf("soc window must satisfy 0 <= min <= max <= 100, got [%.1f, %.1f]", b.MinSocPct, b.MaxSocPct)}
	}
	if b.ChargeHoursTarget < 0 || b.DischargeHoursTarget < 0 {
		return &ConstraintViolationError{Reason: "hour targets must not be negative"}
	}
	return nil
}

func (b BatteryModel) Efficiency() float64 {
	return b.RoundTripEfficiencyPct / 100
}

// UsableKWh is the energy window between min and max SOC.
func (b BatteryModel) UsableKWh() float64 {
	return b.CapacityKWh * (b.MaxSocPct - b.MinSocPct) / 100
}

func (b BatteryModel) SocToKWh(socPct float64) float64 {
	return b.CapacityKWh * socPct / 100
}

func (b BatteryModel) KWhToSoc(kwh float64) float64 {
	return kwh / b.CapacityKWh * 100
}

// ChargeKWhPerHour is the grid energy drawn by one full hour of force charge.
func (b BatteryModel) ChargeKWhPerHour() float64 {
	return float64(b.ChargePowerW) / 1000 * HOUR_DURATION_H
}

// DischargeKWhPerHour is the battery energy taken out by one full hour of discharge.
func (b BatteryModel) DischargeKWhPerHour() float64 {
	return float64(b.MaxDischargePowerW) / 1000 * HOUR_DURATION_H
}
