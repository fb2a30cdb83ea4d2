// internal/flash/mem.go
package flash

import "sync"

// Mem is an in-memory NOR device.
type Mem struct {
	mu     sync.Mutex
	geo    Geometry
	data   []byte
	kicker Kicker
}

// NewMem returns an erased device.
func NewMem(geo Geometry, k Kicker) (*Mem, error) {
	if err := geo.validate(); err != nil {
		return nil, err
	}
	data := make([]byte, geo.Size)
	for i := range data {
		data[i] = ErasedByte
	}
	return &Mem{geo: geo, data: data, kicker: k}, nil
}

func (m *Mem) BlockSize() uint32 { return m.geo.BlockSize }

func (m *Mem) Read(addr uint32, buf []byte) error {
	if err := m.geo.check(addr, len(buf)); err != nil {
		return err
	}
	m.mu.Lock()
	copy(buf, m.data[addr:])
	m.mu.Unlock()
	return nil
}

func (m *Mem) Program(addr uint32, buf []byte) error {
	if err := m.geo.check(addr, len(buf)); err != nil {
		return err
	}
	m.mu.Lock()
	for i, b := range buf {
		m.data[addr+uint32(i)] &= b
	}
	m.mu.Unlock()
	return nil
}

func (m *Mem) Erase(addr uint32, length int) error {
	start, end, err := m.geo.span(addr, length)
	if err != nil {
		return err
	}
	for blk := start; blk < end; blk += m.geo.BlockSize {
		m.mu.Lock()
		for i := blk; i < blk+m.geo.BlockSize; i++ {
			m.data[i] = ErasedByte
		}
		m.mu.Unlock()
		if m.kicker != nil {
			m.kicker.Kick()
		}
	}
	return nil
}
