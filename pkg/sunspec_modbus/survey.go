package sunspec_modbus

import (
	"errors"
)

// SunSpec well-known model ids
const (
	SUNSPEC_WK_COMMON        = 1
	SUNSPEC_WK_INVERTERS_MIN = 101
	SUNSPEC_WK_INVERTERS_MAX = 103
	SUNSPEC_WK_STATUS        = 122
	SUNSPEC_WK_STORAGE       = 124

	SUNSPEC_BASE_ADDR      = 40000
	SUNSPEC_END_BLOCK      = 0xFFFF
	SUNSPEC_MAX_BLOCK_SCAN = 20
)

var ErrNoSunSpec = errors.New("sunspec: could not find a SunSpec device")
var ErrNoStorage = errors.New("sunspec: storage block not supported")

type storageBlocks struct {
	common   uint16
	inverter uint16
	status   uint16
	storage  uint16
}

func (blk storageBlocks) complete() bool {
	return blk.common > 0 && blk.inverter > 0 && blk.status > 0 && blk.storage > 0
}

type modbusBlock struct {
	id       uint16
	baseAddr uint16
	length   uint16
}

func (r registers) survey() (storageBlocks, error) {
	marker, err := r.readString(SUNSPEC_BASE_ADDR, 4)
	if err != nil {
		return storageBlocks{}, err
	}
	if marker != "SunS" {
		return storageBlocks{}, ErrNoSunSpec
	}

	blocks := storageBlocks{}
	addr := uint16(SUNSPEC_BASE_ADDR + 2)
	for n := 0; n <= SUNSPEC_MAX_BLOCK_SCAN && !blocks.complete(); n++ {
		block, err := r.readBlockHeader(addr)
		if err != nil {
			return storageBlocks{}, err
		}
		if block.id == SUNSPEC_END_BLOCK {
			break
		}
		switch {
		case block.id >= SUNSPEC_WK_INVERTERS_MIN && block.id <= SUNSPEC_WK_INVERTERS_MAX:
			blocks.inverter = block.baseAddr
		case block.id == SUNSPEC_WK_COMMON:
			blocks.common = block.baseAddr
		case block.id == SUNSPEC_WK_STATUS:
			blocks.status = block.baseAddr
		case block.id == SUNSPEC_WK_STORAGE:
			blocks.storage = block.baseAddr
		}
		addr = addr + block.length + 2
	}
	if blocks.common == 0 {
		return storageBlocks{}, errors.New("sunspec: common block not found")
	}
	return blocks, nil
}

func (r registers) readBlockHeader(baseAddr uint16) (modbusBlock, error) {
	header, err := r.readRegisters(baseAddr, 2)
	if err != nil {
		return modbusBlock{}, err
	}
	return modbusBlock{
		id:       header[0],
		length:   header[1],
		baseAddr: baseAddr,
	}, nil
}
