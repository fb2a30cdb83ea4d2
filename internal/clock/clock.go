// internal/clock/clock.go
package clock

import (
	"sync/atomic"
	"time"
)

// Clock is the monotonic millisecond counter. It wraps modulo 2^32;
// compare instants with Since, never with < or >.
type Clock interface {
	Now() uint32
}

// Since returns the milliseconds elapsed from then to now across a wrap.
func Since(now, then uint32) uint32 {
	return now - then
}

// System counts milliseconds since it was created.
type System struct {
	start time.Time
}

func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) Now() uint32 {
	return uint32(time.Since(s.start) / time.Millisecond)
}

// Manual only moves when told to.
type Manual struct {
	ms atomic.Uint32
}

func NewManual(start uint32) *Manual {
	m := &Manual{}
	m.ms.Store(start)
	return m
}

func (m *Manual) Now() uint32 { return m.ms.Load() }

// Advance moves the clock forward by d milliseconds.
func (m *Manual) Advance(d uint32) { m.ms.Add(d) }
