// internal/flash/flash.go
package flash

import (
	"github.com/pkg/errors"
)

// EraseAll passed as length erases the whole device.
const EraseAll = -1

// ErasedByte is the value of every byte after erase.
const ErasedByte = 0xFF

// ErrOutOfRange is returned for accesses past the end of the device.
var ErrOutOfRange = errors.New("flash: access out of range")

// Flash is the block-addressed staging memory.
//
// Program follows NOR rules: bits can only be cleared, so programming
// over non-erased bytes ANDs the new data into the old.
type Flash interface {
	Read(addr uint32, buf []byte) error
	Program(addr uint32, buf []byte) error
	Erase(addr uint32, length int) error
	BlockSize() uint32
}

// Kicker is serviced once per erased block.
type Kicker interface {
	Kick()
}

// Geometry describes a device.
type Geometry struct {
	Size      uint32
	BlockSize uint32
}

func (g Geometry) validate() error {
	if g.BlockSize == 0 {
		return errors.New("flash: block size must be > 0")
	}
	if g.Size == 0 || g.Size%g.BlockSize != 0 {
		return errors.Errorf("flash: size %d must be a non-zero multiple of block size %d", g.Size, g.BlockSize)
	}
	return nil
}

func (g Geometry) check(addr uint32, n int) error {
	if uint64(addr)+uint64(n) > uint64(g.Size) {
		return errors.Wrapf(ErrOutOfRange, "addr=0x%x len=%d size=0x%x", addr, n, g.Size)
	}
	return nil
}

// span rounds an erase request out to whole blocks.
func (g Geometry) span(addr uint32, length int) (start, end uint32, err error) {
	if length == EraseAll {
		return 0, g.Size, nil
	}
	if length < 0 {
		return 0, 0, errors.Errorf("flash: bad erase length %d", length)
	}
	if err := g.check(addr, length); err != nil {
		return 0, 0, err
	}
	start = addr - addr%g.BlockSize
	end = addr + uint32(length)
	if rem := end % g.BlockSize; rem != 0 {
		end += g.BlockSize - rem
	}
	return start, end, nil
}
