// internal/status/register.go
package status

import "sync/atomic"

// Register is the StatusByte. Bits are set and cleared independently
// from bus-event and main-loop goroutines.
type Register struct {
	v atomic.Uint32
}

// Load returns the current status byte.
func (r *Register) Load() uint8 {
	return uint8(r.v.Load())
}

// Set raises the given bits.
func (r *Register) Set(bits uint8) {
	for {
		old := r.v.Load()
		if r.v.CompareAndSwap(old, old|uint32(bits)) {
			return
		}
	}
}

// Clear drops the given bits.
func (r *Register) Clear(bits uint8) {
	for {
		old := r.v.Load()
		if r.v.CompareAndSwap(old, old&^uint32(bits)) {
			return
		}
	}
}

// Has reports whether all given bits are set.
func (r *Register) Has(bits uint8) bool {
	return r.Load()&bits == bits
}
