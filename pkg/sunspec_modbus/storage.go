package sunspec_modbus

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// register offsets inside the storage block (model 124), relative to the block id register
const (
	storWChaMax        = 2
	storStorCtlMod     = 5
	storMinRsvPct      = 7
	storChaState       = 8
	storChaSt          = 11
	storOutWRte        = 12
	storInWRte         = 13
	storRvrtTms        = 15
	storWChaMaxSF      = 18
	storMinRsvPctSF    = 21
	storChaStateSF     = 22
	storInOutWRteSF    = 25
	storStateRegsCount = 24

	// StorConn inside the status block (model 122)
	statusStorConn = 3

	storCtlCharge    = 0x01
	storCtlDischarge = 0x02
)

// StorageClient controls the storage block of a SunSpec int+SF inverter.
type StorageClient struct {
	registers
	blocks        storageBlocks
	ignoreFronius bool
}

func NewStorageClient(host string, port uint, unitId uint8, timeout time.Duration, ignoreFronius bool, logger *zap.Logger) (*StorageClient, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if unitId > 0 {
		if err := client.SetUnitId(unitId); err != nil {
			return nil, err
		}
	}
	return newStorageClient(client, ignoreFronius, logger.With(zap.String("target", "storage"), zap.Uint8("unit", unitId))), nil
}

func newStorageClient(client registerClient, ignoreFronius bool, logger *zap.Logger) *StorageClient {
	return &StorageClient{
		registers: registers{
			client: client,
			logger: logger,
		},
		ignoreFronius: ignoreFronius,
	}
}

func (s *StorageClient) Open() error {
	if err := s.client.Open(); err != nil {
		return err
	}
	blocks, err := s.survey()
	if err != nil {
		return err
	}
	s.blocks = blocks
	return nil
}

func (s *StorageClient) Close() error {
	return s.client.Close()
}

func (s *StorageClient) Validate() error {
	if s.ignoreFronius {
		return nil
	}
	manufacturer, err := s.readString(s.blocks.common+2, 32)
	if err != nil {
		return err
	}
	if manufacturer != "Fronius" {
		return fmt.Errorf("could not find a Fronius inverter (manufacturer %q)", manufacturer)
	}
	return nil
}

func (s *StorageClient) HasStorage() (bool, error) {
	if s.blocks.storage == 0 {
		return false, nil
	}
	if s.blocks.status == 0 {
		return true, nil
	}
	storageConn, err := s.readRegister(s.blocks.status + statusStorConn)
	if err != nil {
		return false, err
	}
	return storageConn&0x0001 != 0, nil
}

// setChargeRates writes OutWRte/InWRte (percent of WChaMax), the control mode and the revert timeout.
// A negative revert timeout leaves the register untouched.
func (s *StorageClient) setChargeRates(outWRtePct, inWRtePct float64, controlDischarge, controlCharge bool, rvrtTimeSeconds int32) error {
	if s.blocks.storage == 0 {
		return ErrNoStorage
	}
	sf, err := s.readRegister(s.blocks.storage + storInOutWRteSF)
	if err != nil {
		return err
	}
	control := uint16(0)
	if controlDischarge {
		control |= storCtlDischarge
	}
	if controlCharge {
		control |= storCtlCharge
	}

	outWRte := int16(math.Round(unapplySF(outWRtePct, sf)))
	inWRte := int16(math.Round(unapplySF(inWRtePct, sf)))
	if err := s.writeRegisters(s.blocks.storage+storOutWRte, []uint16{uint16(outWRte), uint16(inWRte)}); err != nil {
		return err
	}
	if err := s.writeRegister(s.blocks.storage+storStorCtlMod, control); err != nil {
		return err
	}
	if rvrtTimeSeconds >= 0 {
		return s.writeRegister(s.blocks.storage+storRvrtTms, uint16(rvrtTimeSeconds))
	}
	return nil
}

func (s *StorageClient) SetStorageControl(params StorageControlParams) error {
	maxRate, err := s.maxChargeRate()
	if err != nil {
		return err
	}
	if maxRate <= 0 {
		return errors.New("sunspec: storage reports no charge rate")
	}

	outWRte, inWRte := 100.0, 100.0
	controlOut, controlIn := false, false
	// a negative discharge limit forces charging and vice versa
	if params.MinChargePowerWatt >= 0 {
		outWRte = -(float64(params.MinChargePowerWatt) / maxRate) * 100
		controlOut = true
	}
	if params.MaxChargePowerWatt >= 0 {
		inWRte = (float64(params.MaxChargePowerWatt) / maxRate) * 100
		controlIn = true
	}
	if params.MinDischargePowerWatt >= 0 {
		inWRte = -(float64(params.MinDischargePowerWatt) / maxRate) * 100
		controlIn = true
	}
	if params.MaxDischargePowerWatt >= 0 {
		outWRte = (float64(params.MaxDischargePowerWatt) / maxRate) * 100
		controlOut = true
	}
	return s.setChargeRates(clampPct(outWRte), clampPct(inWRte), controlOut, controlIn, int32(params.RevertTimeSeconds))
}

func (s *StorageClient) SetStorageForceChargePower(watts uint16, revertTimeSeconds int32) error {
	return s.SetStorageControl(StorageControlParams{
		MinChargePowerWatt:    int32(watts),
		MaxChargePowerWatt:    -1,
		MinDischargePowerWatt: -1,
		MaxDischargePowerWatt: -1,
		RevertTimeSeconds:     uint32(max(revertTimeSeconds, 0)),
	})
}

func (s *StorageClient) SetStorageForceDischargePower(watts uint16, revertTimeSeconds int32) error {
	return s.SetStorageControl(StorageControlParams{
		MinChargePowerWatt:    -1,
		MaxChargePowerWatt:    -1,
		MinDischargePowerWatt: int32(watts),
		MaxDischargePowerWatt: -1,
		RevertTimeSeconds:     uint32(max(revertTimeSeconds, 0)),
	})
}

func (s *StorageClient) DisableStorageControl() error {
	return s.setChargeRates(100, 100, false, false, -1)
}

func (s *StorageClient) GetStorageState() (*StorageState, error) {
	if s.blocks.storage == 0 {
		return nil, ErrNoStorage
	}
	regs, err := s.readRegisters(s.blocks.storage, storStateRegsCount+2)
	if err != nil {
		return nil, err
	}
	soc := applySF(regs[storChaState], regs[storChaStateSF])
	if regs[storChaSt] == StorageChargeStatusOff {
		soc = 0
	}
	return &StorageState{
		StateOfCharge:     soc,
		MinReservePct:     applySF(regs[storMinRsvPct], regs[storMinRsvPctSF]),
		MaxChargeRateWatt: uint32(math.Round(applySF(regs[storWChaMax], regs[storWChaMaxSF]))),
		ChargeStatus:      regs[storChaSt],
		ChargeStatusStr:   StorageChargeStatusToString(regs[storChaSt]),
	}, nil
}

func (s *StorageClient) maxChargeRate() (float64, error) {
	if s.blocks.storage == 0 {
		return 0, ErrNoStorage
	}
	wChaMax, err := s.readRegister(s.blocks.storage + storWChaMax)
	if err != nil {
		return 0, err
	}
	sf, err := s.readRegister(s.blocks.storage + storWChaMaxSF)
	if err != nil {
		return 0, err
	}
	return applySF(wChaMax, sf), nil
}

func clampPct(pct float64) float64 {
	return math.Max(-100, math.Min(100, pct))
}

var _ StorageModbusClient = (*StorageClient)(nil)
