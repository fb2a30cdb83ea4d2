// internal/smbus/loopback.go
package smbus

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
)

var (
	// ErrAddressNack is returned when no device answers the address.
	ErrAddressNack = errors.New("smbus: address not acknowledged")
	// ErrDataNack is returned when the slave has nothing to send.
	ErrDataNack = errors.New("smbus: read not acknowledged")
)

// Loopback is an in-process I2C bus with the engine as its only slave.
// It implements periph's i2c.Bus, so host code runs against it
// unchanged. Transactions are serialized like on a real bus.
type Loopback struct {
	mu sync.Mutex
	e  *Engine
}

// NewLoopback attaches a bus to e.
func NewLoopback(e *Engine) *Loopback {
	return &Loopback{e: e}
}

func (l *Loopback) String() string {
	return fmt.Sprintf("loopback(0x%02x)", l.e.opts.Address>>1)
}

// SetSpeed is accepted and ignored.
func (l *Loopback) SetSpeed(physic.Frequency) error { return nil }

// Tx performs a write (w), a read (r) or a write followed by a repeated
// start and a read.
func (l *Loopback) Tx(addr uint16, w, r []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if addr != uint16(l.e.opts.Address>>1) {
		return ErrAddressNack
	}

	if len(w) > 0 {
		l.e.OnWriteRequest()
		l.e.OnWriteComplete(w, len(r) > 0)
	}
	if len(r) == 0 {
		return nil
	}

	reply := l.e.OnReadRequest()
	if len(reply) == 0 {
		return ErrDataNack
	}

	// the bus idles high once the slave runs out of data
	n := copy(r, reply)
	for i := n; i < len(r); i++ {
		r[i] = 0xFF
	}
	return nil
}
