// internal/regmap/file.go
package regmap

import "sync"

// Size is the number of addressable registers.
const Size = 256

// File is the canonical device state shared by the bus engine and the
// polled collaborators.
//
// Every Get/Set is one critical section. Nothing here is atomic across
// more than one register; callers that touch pairs accept that a reader
// may observe a torn value.
type File struct {
	mu   sync.Mutex
	regs [Size]byte
}

// New returns a zeroed register file.
func New() *File {
	return &File{}
}

// Get reads one register in a single critical section.
func (f *File) Get(r Register) byte {
	f.mu.Lock()
	v := f.regs[r]
	f.mu.Unlock()
	return v
}

// Set writes one register in a single critical section.
func (f *File) Set(r Register, v byte) {
	f.mu.Lock()
	f.regs[r] = v
	f.mu.Unlock()
}

// GetPair reads a little-endian (low, high) register pair.
func (f *File) GetPair(low Register) uint16 {
	lo := f.Get(low)
	hi := f.Get(low + 1)
	return uint16(hi)<<8 | uint16(lo)
}

// SetPair writes a little-endian (low, high) register pair.
func (f *File) SetPair(low Register, v uint16) {
	f.Set(low, byte(v))
	f.Set(low+1, byte(v>>8))
}

// GetBytes copies n consecutive registers starting at first.
func (f *File) GetBytes(first Register, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = f.Get(first + Register(i))
	}
	return out
}

// SetBytes stores b into consecutive registers starting at first.
func (f *File) SetBytes(first Register, b []byte) {
	for i, v := range b {
		f.Set(first+Register(i), v)
	}
}

// Snapshot copies the whole file, one register access at a time.
func (f *File) Snapshot() [Size]byte {
	var out [Size]byte
	for i := 0; i < Size; i++ {
		out[i] = f.Get(Register(i))
	}
	return out
}
