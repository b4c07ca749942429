package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE                 = "bridge"
	SENSOR_ID_PLANNER_STATUS               = "planner_status"
	SENSOR_ID_CURRENT_ACTION               = "current_action"
	SENSOR_ID_NEXT_ACTION                  = "next_action"
	SENSOR_ID_NEXT_ACTION_HOUR             = "next_action_hour"
	SENSOR_ID_EXPECTED_BENEFIT             = "expected_benefit"
	SENSOR_ID_CHARGE_HOURS                 = "charge_hours"
	SENSOR_ID_DISCHARGE_HOURS              = "discharge_hours"
	SENSOR_ID_HOURLY_PLAN                  = "hourly_plan"
	SENSOR_ID_PLAN_GENERATION              = "plan_generation"
	SENSOR_ID_LAST_ERROR                   = "last_error"
	SENSOR_ID_BATTERY_SOC                  = "battery_soc"
	SWITCH_ID_AUTOMATIC_CONTROL            = "automatic_control"
	BUTTON_ID_OPTIMIZE                     = "optimize"
	INPUT_NUMBER_ID_CHARGE_HOURS_TARGET    = "charge_hours_target"
	INPUT_NUMBER_ID_DISCHARGE_HOURS_TARGET = "discharge_hours_target"
	STATE_CLASS_MEASUREMENT                = "measurement"
	STATE_CLASS_TOTAL                      = "total"
	DEVICE_CLASS_BATTERY                   = "battery"
	DEVICE_CLASS_MONETARY                  = "monetary"
	DEVICE_CLASS_ENUM                      = "enum"
	DEVICE_CLASS_CONNECTIVITY              = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC                = "diagnostic"
	ENTITY_CLASS_CONFIG                    = "config"
	SENSOR_TYPE_SENSOR                     = "sensor"
	SENSOR_TYPE_BINARY                     = "binary_sensor"
	INPUT_NUMBER_MODE_BOX                  = "box"
	INPUT_NUMBER_MODE_SLIDER               = "slider"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("spotcharge_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "SpotCharge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SpotCharge %s", md5HashShort(baseTopic)),
	}
}

// PlannerDevice groups the planner entities under the bridge.
func PlannerDevice(bridge Device) Device {
	return Device{
		Id:           fmt.Sprintf("spotcharge_planner_%s", md5HashShort(bridge.Id)),
		Manufacturer: bridge.Manufacturer,
		Model:        "SpotCharge planner",
		Version:      bridge.Version,
		Name:         "Battery charge planner",
		ViaDevice:    bridge.Id,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{
		{
			Device:         bridgeDevice,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Connection state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
		},
	}
}

func PlannerSensors(plannerDevice Device, currency string) []GenericSensor {

	var sensors []GenericSensor

	// Status
	sensors = append(sensors, GenericSensor{
		Device:      plannerDevice,
		Id:          SENSOR_ID_PLANNER_STATUS,
		SensorType:  SENSOR_TYPE_SENSOR,
		Name:        "Status",
		DeviceClass: DEVICE_CLASS_ENUM,
		Options:     statusOptions(),
		Icon:        "mdi:state-machine",
		UniqueId:    uniqueId(plannerDevice.Id, SENSOR_ID_PLANNER_STATUS),
	})

	// Current and next action
	sensors = append(sensors, GenericSensor{
		Device:      plannerDevice,
		Id:          SENSOR_ID_CURRENT_ACTION,
		SensorType:  SENSOR_TYPE_SENSOR,
		Name:        "Current action",
		DeviceClass: DEVICE_CLASS_ENUM,
		Options:     batteryModeOptions(),
		Icon:        "mdi:battery-sync",
		UniqueId:    uniqueId(plannerDevice.Id, SENSOR_ID_CURRENT_ACTION),
	})
	sensors = append(sensors, GenericSensor{
		Device:      plannerDevice,
		Id:          SENSOR_ID_NEXT_ACTION,
		SensorType:  SENSOR_TYPE_SENSOR,
		Name:        "Next action",
		DeviceClass: DEVICE_CLASS_ENUM,
		Options:     batteryModeOptions(),
		Icon:        "mdi:battery-clock",
		UniqueId:    uniqueId(plannerDevice.Id, SENSOR_ID_NEXT_ACTION),
	})
	sensors = append(sensors, GenericSensor{
		Device:            plannerDevice,
		Id:                SENSOR_ID_NEXT_ACTION_HOUR,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Next action hour",
		UnitOfMeasurement: "h",
		Icon:              "mdi:clock-outline",
		UniqueId:          uniqueId(plannerDevice.Id, SENSOR_ID_NEXT_ACTION_HOUR),
	})

	// Expected benefit
	sensors = append(sensors, GenericSensor{
		Device:            plannerDevice,
		Id:                SENSOR_ID_EXPECTED_BENEFIT,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Expected benefit",
		StateClass:        STATE_CLASS_TOTAL,
		DeviceClass:       DEVICE_CLASS_MONETARY,
		UnitOfMeasurement: currency,
		UniqueId:          uniqueId(plannerDevice.Id, SENSOR_ID_EXPECTED_BENEFIT),
	})

	// Plan
	sensors = append(sensors, GenericSensor{
		Device:     plannerDevice,
		Id:         SENSOR_ID_CHARGE_HOURS,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Charge hours",
		Icon:       "mdi:battery-charging",
		UniqueId:   uniqueId(plannerDevice.Id, SENSOR_ID_CHARGE_HOURS),
	})
	sensors = append(sensors, GenericSensor{
		Device:     plannerDevice,
		Id:         SENSOR_ID_DISCHARGE_HOURS,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Discharge hours",
		Icon:       "mdi:battery-arrow-down",
		UniqueId:   uniqueId(plannerDevice.Id, SENSOR_ID_DISCHARGE_HOURS),
	})
	sensors = append(sensors, GenericSensor{
		Device:     plannerDevice,
		Id:         SENSOR_ID_HOURLY_PLAN,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Hourly plan",
		Icon:       "mdi:calendar-clock",
		UniqueId:   uniqueId(plannerDevice.Id, SENSOR_ID_HOURLY_PLAN),
	})

	// Diagnostics
	sensors = append(sensors, GenericSensor{
		Device:         plannerDevice,
		Id:             SENSOR_ID_PLAN_GENERATION,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Plan generation",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(plannerDevice.Id, SENSOR_ID_PLAN_GENERATION),
	})
	sensors = append(sensors, GenericSensor{
		Device:           plannerDevice,
		Id:               SENSOR_ID_LAST_ERROR,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Last error",
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		Icon:             "mdi:alert-circle-outline",
		UniqueId:         uniqueId(plannerDevice.Id, SENSOR_ID_LAST_ERROR),
	})

	// Battery SoC
	sensors = append(sensors, GenericSensor{
		Device:            plannerDevice,
		Id:                SENSOR_ID_BATTERY_SOC,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery SoC",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(plannerDevice.Id, SENSOR_ID_BATTERY_SOC),
	})

	return sensors
}

func PlannerSwitches(plannerDevice Device) []GenericSwitch {
	return []GenericSwitch{
		{
			Device:   plannerDevice,
			Id:       SWITCH_ID_AUTOMATIC_CONTROL,
			Name:     "Automatic control",
			UniqueId: uniqueId(plannerDevice.Id, SWITCH_ID_AUTOMATIC_CONTROL),
			Icon:     "mdi:robot",
		},
	}
}

func PlannerButtons(plannerDevice Device) []GenericButton {
	return []GenericButton{
		{
			Device:   plannerDevice,
			Id:       BUTTON_ID_OPTIMIZE,
			Name:     "Optimize now",
			UniqueId: uniqueId(plannerDevice.Id, BUTTON_ID_OPTIMIZE),
			Icon:     "mdi:calculator-variant",
		},
	}
}

func PlannerInputNumbers(plannerDevice Device, battery BatteryModel) []GenericInputNumber {

	var inputNumbers []GenericInputNumber

	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       plannerDevice,
		Id:           INPUT_NUMBER_ID_CHARGE_HOURS_TARGET,
		Name:         "Charge hours target",
		UniqueId:     uniqueId(plannerDevice.Id, INPUT_NUMBER_ID_CHARGE_HOURS_TARGET),
		Icon:         "mdi:battery-plus",
		Max:          HOURS_PER_DAY,
		Min:          0,
		Step:         1,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: float64(battery.ChargeHoursTarget),
	})
	inputNumbers = append(inputNumbers, GenericInputNumber{
		Device:       plannerDevice,
		Id:           INPUT_NUMBER_ID_DISCHARGE_HOURS_TARGET,
		Name:         "Discharge hours target",
		UniqueId:     uniqueId(plannerDevice.Id, INPUT_NUMBER_ID_DISCHARGE_HOURS_TARGET),
		Icon:         "mdi:battery-minus",
		Max:          HOURS_PER_DAY,
		Min:          0,
		Step:         1,
		Mode:         INPUT_NUMBER_MODE_BOX,
		InitialValue: float64(battery.DischargeHoursTarget),
	})

	return inputNumbers
}

func statusOptions() []string {
	return []string{StatusIdleStr, StatusOptimizingStr, StatusReadyStr, StatusExecutingStr, StatusErrorStr}
}

func batteryModeOptions() []string {
	return []string{BatteryModeIdleStr, BatteryModeChargingStr, BatteryModeDischargingStr}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
