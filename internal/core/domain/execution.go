package domain

import (
	"fmt"
	"time"
)

type Status uint8

const (
	StatusIdle Status = iota
	StatusOptimizing
	StatusReady
	StatusExecuting
	StatusError
)

const (
	StatusIdleStr       = "idle"
	StatusOptimizingStr = "optimizing"
	StatusReadyStr      = "ready"
	StatusExecutingStr  = "executing"
	StatusErrorStr      = "error"
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return StatusIdleStr
	case StatusOptimizing:
		return StatusOptimizingStr
	case StatusReady:
		return StatusReadyStr
	case StatusExecuting:
		return StatusExecutingStr
	case StatusError:
		return StatusErrorStr
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BatteryMode is what the battery is doing right now.
type BatteryMode uint8

const (
	BatteryModeIdle BatteryMode = iota
	BatteryModeCharging
	BatteryModeDischarging
)

const (
	BatteryModeIdleStr        = "idle"
	BatteryModeChargingStr    = "charging"
	BatteryModeDischargingStr = "discharging"
)

func (m BatteryMode) String() string {
	switch m {
	case BatteryModeIdle:
		return BatteryModeIdleStr
	case BatteryModeCharging:
		return BatteryModeChargingStr
	case BatteryModeDischarging:
		return BatteryModeDischargingStr
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

func (m BatteryMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ExecutionState is owned by the plan executor.
type ExecutionState struct {
	Status           Status
	CurrentAction    BatteryMode
	NextAction       BatteryMode
	NextActionHour   int
	AutomaticControl bool
	LastError        string
	LastReason       string
}

func InitialExecutionState(automaticControl bool) ExecutionState {
	return ExecutionState{
		Status:           StatusIdle,
		CurrentAction:    BatteryModeIdle,
		NextAction:       BatteryModeIdle,
		NextActionHour:   -1,
		AutomaticControl: automaticControl,
	}
}

// Telemetry is the read-only snapshot exposed to dashboards and monitors.
type Telemetry struct {
	Generation       uint64      `json:"generation"`
	Status           Status      `json:"status"`
	CurrentAction    BatteryMode `json:"currentAction"`
	NextAction       BatteryMode `json:"nextAction"`
	NextActionHour   int         `json:"nextActionHour"`
	AutomaticControl bool        `json:"automaticControl"`
	ExpectedBenefit  float64     `json:"expectedBenefit"` // unrounded, as planned
	Plan             *PlanView   `json:"plan,omitempty"`
	LastError        string      `json:"lastError,omitempty"`
	LastReason       string      `json:"lastReason,omitempty"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// PlanSnapshot is one installed generation of the current plan.
type PlanSnapshot struct {
	Generation  uint64
	Plan        *Plan
	InstalledAt time.Time
}
