package sunspec_modbus

import (
	"fmt"
)

// storage charge states (ChaSt)
const (
	StorageChargeStatusOff         = 1
	StorageChargeStatusEmpty       = 2
	StorageChargeStatusDischarging = 3
	StorageChargeStatusCharging    = 4
	StorageChargeStatusFull        = 5
	StorageChargeStatusHolding     = 6
	StorageChargeStatusTest        = 7
)

var storageChargeStatusNames = map[uint16]string{
	StorageChargeStatusOff:         "off",
	StorageChargeStatusEmpty:       "empty",
	StorageChargeStatusDischarging: "discharging",
	StorageChargeStatusCharging:    "charging",
	StorageChargeStatusFull:        "full",
	StorageChargeStatusHolding:     "holding",
	StorageChargeStatusTest:        "test",
}

func StorageChargeStatusToString(status uint16) string {
	if name, ok := storageChargeStatusNames[status]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", status)
}

type StorageState struct {
	StateOfCharge     float64
	MinReservePct     float64
	MaxChargeRateWatt uint32
	ChargeStatus      uint16
	ChargeStatusStr   string
}

// StorageControlParams limits charge and discharge rates in watts. Negative values leave a limit unset.
type StorageControlParams struct {
	MinChargePowerWatt    int32
	MaxChargePowerWatt    int32
	MinDischargePowerWatt int32
	MaxDischargePowerWatt int32
	RevertTimeSeconds     uint32
}

type StorageModbusClient interface {
	Open() error
	Close() error
	Validate() error

	HasStorage() (bool, error)
	SetStorageControl(params StorageControlParams) error
	SetStorageForceChargePower(watts uint16, revertTimeSeconds int32) error
	SetStorageForceDischargePower(watts uint16, revertTimeSeconds int32) error
	DisableStorageControl() error
	GetStorageState() (*StorageState, error)
}
