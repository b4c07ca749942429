package events

import (
	"strconv"
	"strings"

	. "github.com/berfenger/spotcharge2mqtt/internal/core/domain"
)

const NONE_PAYLOAD = "None"

// TelemetryToUpdateEvents maps a telemetry snapshot to the planner sensor states.
func TelemetryToUpdateEvents(t Telemetry) []any {
	var events []any

	// Status
	events = append(events, textEvent(SENSOR_ID_PLANNER_STATUS, t.Status.String()))

	// Current and next action
	events = append(events, textEvent(SENSOR_ID_CURRENT_ACTION, t.CurrentAction.String()))
	events = append(events, textEvent(SENSOR_ID_NEXT_ACTION, t.NextAction.String()))
	if t.NextActionHour >= 0 {
		events = append(events, IntSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_NEXT_ACTION_HOUR,
			},
			Value: int64(t.NextActionHour),
		})
	} else {
		events = append(events, textEvent(SENSOR_ID_NEXT_ACTION_HOUR, NONE_PAYLOAD))
	}

	// Plan
	if t.Plan != nil {
		events = append(events, FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_EXPECTED_BENEFIT,
			},
			Value:    t.ExpectedBenefit,
			Decimals: 2,
		})
		events = append(events, textEvent(SENSOR_ID_CHARGE_HOURS, formatHours(t.Plan.ChargeHours)))
		events = append(events, textEvent(SENSOR_ID_DISCHARGE_HOURS, formatHours(t.Plan.DischargeHours)))
		events = append(events, textEvent(SENSOR_ID_HOURLY_PLAN, t.Plan.Codes))
		events = append(events, IntSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_PLAN_GENERATION,
			},
			Value: int64(t.Generation),
		})
	}

	// Diagnostics
	lastError := t.LastError
	if lastError == "" {
		lastError = "none"
	}
	events = append(events, textEvent(SENSOR_ID_LAST_ERROR, truncate(lastError, 255)))

	events = append(events, AutomaticControlSwitchUpdateEvent(t.AutomaticControl))

	return events
}

func AutomaticControlSwitchUpdateEvent(enabled bool) SwitchSensorUpdateEvent {
	return SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_AUTOMATIC_CONTROL,
		},
		Value: enabled,
	}
}

func BatterySocUpdateEvent(socPct float64) FloatSensorUpdateEvent {
	return FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BATTERY_SOC,
		},
		Value:    socPct,
		Decimals: 1,
	}
}

func HourTargetsUpdateEvents(battery BatteryModel) []any {
	return []any{
		InputNumberSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: INPUT_NUMBER_ID_CHARGE_HOURS_TARGET,
			},
			Value: float64(battery.ChargeHoursTarget),
		},
		InputNumberSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: INPUT_NUMBER_ID_DISCHARGE_HOURS_TARGET,
			},
			Value: float64(battery.DischargeHoursTarget),
		},
	}
}

func textEvent(id, value string) TextSensorUpdateEvent {
	return TextSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: id,
		},
		Value: value,
	}
}

func formatHours(hours []int) string {
	if len(hours) == 0 {
		return "none"
	}
	parts := make([]string, len(hours))
	for i, h := range hours {
		parts[i] = strconv.Itoa(h)
	}
	return strings.Join(parts, ",")
}

// HA rejects sensor states longer than 255 characters
func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
