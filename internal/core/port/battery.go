package port

import (
	"context"
	"time"
)

// Actuator issues battery mode commands. Implementations may block and must honor ctx.
type Actuator interface {
	SetForceCharge(ctx context.Context, powerW uint32) error
	SetForceDischarge(ctx context.Context, powerW uint32) error
	ClearOverride(ctx context.Context) error
}

// ExpiringActuator is an Actuator whose charge and discharge commands lapse after
// OverrideExpiry. Zero means they hold until replaced.
type ExpiringActuator interface {
	Actuator
	OverrideExpiry() time.Duration
}

// OverridesExpire reports whether force commands sent through a lapse on their own.
func OverridesExpire(a Actuator) bool {
	e, ok := a.(ExpiringActuator)
	return ok && e.OverrideExpiry() > 0
}

type BatteryTelemetry interface {
	StateOfCharge(ctx context.Context) (float64, error)
}

// Connector is implemented by battery backends that hold a connection open.
type Connector interface {
	Open() error
	Close() error
}
