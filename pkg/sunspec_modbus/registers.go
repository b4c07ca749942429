package sunspec_modbus

import (
	"math"
	"slices"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// registerClient is the subset of *modbus.ModbusClient used by the storage client.
type registerClient interface {
	Open() error
	Close() error
	ReadRegister(addr uint16, regType modbus.RegType) (uint16, error)
	ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error)
	ReadRawBytes(addr uint16, quantity uint16, regType modbus.RegType) ([]byte, error)
	WriteRegister(addr uint16, value uint16) error
	WriteRegisters(addr uint16, values []uint16) error
}

var _ registerClient = (*modbus.ModbusClient)(nil)

type registers struct {
	client registerClient
	logger *zap.Logger
}

func (r registers) readString(address uint16, size uint16) (string, error) {
	bytes, err := r.readRawBytes(address, size)
	if err != nil {
		return "", err
	}
	if f := slices.Index(bytes, 0x00); f >= 0 {
		return string(bytes[:f]), nil
	}
	return string(bytes), nil
}

func (r registers) readRegister(addr uint16) (uint16, error) {
	defer r.timed("ReadRegister", addr)()
	return r.client.ReadRegister(addr, modbus.HOLDING_REGISTER)
}

func (r registers) readRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	defer r.timed("ReadRegisters", addr)()
	return r.client.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
}

func (r registers) readRawBytes(addr uint16, quantity uint16) ([]byte, error) {
	defer r.timed("ReadRawBytes", addr)()
	return r.client.ReadRawBytes(addr, quantity, modbus.HOLDING_REGISTER)
}

func (r registers) writeRegister(addr uint16, value uint16) error {
	defer r.timed("WriteRegister", addr)()
	return r.client.WriteRegister(addr, value)
}

func (r registers) writeRegisters(addr uint16, values []uint16) error {
	defer r.timed("WriteRegisters", addr)()
	return r.client.WriteRegisters(addr, values)
}

func (r registers) timed(fnName string, addr uint16) func() {
	start := time.Now()
	return func() {
		r.logger.Debug("modbus: call", zap.String("fn", fnName), zap.Uint16("addr", addr),
			zap.Int64("millis", time.Since(start).Milliseconds()))
	}
}

// scale factors are signed powers of ten

func applySF(number uint16, sf uint16) float64 {
	return float64(number) * math.Pow(10, float64(int16(sf)))
}

func unapplySF(number float64, sf uint16) float64 {
	return number / math.Pow(10, float64(int16(sf)))
}
