// internal/mirror/types.go
package mirror

import (
	"github.com/cherryCheese/HouWu-CMM/internal/regmap"
	"github.com/cherryCheese/HouWu-CMM/internal/status"
)

// Plan is where the device is published inside one holding-register memory.
type Plan struct {
	Endpoint     string
	UnitID       uint8
	StatusSlot   uint16 // block index; address = StatusSlot * SlotsPerDevice
	RegisterBase uint16 // first register of the packed register file
	DeviceName   string
}

// Source is the device being mirrored.
type Source interface {
	Snapshot() status.Snapshot
	Registers() *regmap.File
}

// endpointClient is the exact contract the writers use.
// Both the Modbus and the raw-ingest clients satisfy it.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}
