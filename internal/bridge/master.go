// internal/bridge/master.go
package bridge

import (
	"time"

	"periph.io/x/conn/v3/i2c"
)

// Result is the outcome of one master transfer.
type Result uint8

const (
	OK Result = iota
	Timeout
	BusError
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case Timeout:
		return "timeout"
	default:
		return "bus error"
	}
}

// Master is the downstream I2C master. Transfer blocks for at most
// timeout; a NACKed address is a BusError.
type Master interface {
	Transfer(addr uint16, w, r []byte, timeout time.Duration) Result
}

// PeriphMaster drives a periph.io bus.
type PeriphMaster struct {
	Bus i2c.Bus
}

// Transfer runs the transaction on a helper goroutine so a hung bus
// cannot stall the caller past timeout.
func (m PeriphMaster) Transfer(addr uint16, w, r []byte, timeout time.Duration) Result {
	buf := make([]byte, len(r))
	done := make(chan error, 1)
	go func() { done <- m.Bus.Tx(addr, w, buf) }()

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case err := <-done:
		if err != nil {
			return BusError
		}
		copy(r, buf)
		return OK
	case <-t.C:
		return Timeout
	}
}
