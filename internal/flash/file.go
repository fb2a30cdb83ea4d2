// internal/flash/file.go
package flash

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// File is a NOR device backed by an image file, so staged firmware and
// the activation header survive a daemon restart.
type File struct {
	mu     sync.Mutex
	geo    Geometry
	f      *os.File
	kicker Kicker
}

// OpenFile opens (or creates and erases) the backing file.
func OpenFile(path string, geo Geometry, k Kicker) (*File, error) {
	if err := geo.validate(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "flash: open")
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "flash: stat")
	}

	fl := &File{geo: geo, f: f, kicker: k}

	switch {
	case st.Size() == 0:
		if err := fl.Erase(0, EraseAll); err != nil {
			f.Close()
			return nil, err
		}
	case st.Size() != int64(geo.Size):
		f.Close()
		return nil, errors.Errorf("flash: %s is %d bytes, want %d", path, st.Size(), geo.Size)
	}

	return fl, nil
}

func (fl *File) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.f.Close()
}

func (fl *File) BlockSize() uint32 { return fl.geo.BlockSize }

func (fl *File) Read(addr uint32, buf []byte) error {
	if err := fl.geo.check(addr, len(buf)); err != nil {
		return err
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if _, err := fl.f.ReadAt(buf, int64(addr)); err != nil && err != io.EOF {
		return errors.Wrapf(err, "flash: read 0x%x", addr)
	}
	return nil
}

func (fl *File) Program(addr uint32, buf []byte) error {
	if err := fl.geo.check(addr, len(buf)); err != nil {
		return err
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()

	cur := make([]byte, len(buf))
	if _, err := fl.f.ReadAt(cur, int64(addr)); err != nil && err != io.EOF {
		return errors.Wrapf(err, "flash: program read-back 0x%x", addr)
	}
	for i := range cur {
		cur[i] &= buf[i]
	}
	if _, err := fl.f.WriteAt(cur, int64(addr)); err != nil {
		return errors.Wrapf(err, "flash: program 0x%x", addr)
	}
	return nil
}

func (fl *File) Erase(addr uint32, length int) error {
	start, end, err := fl.geo.span(addr, length)
	if err != nil {
		return err
	}

	blank := make([]byte, fl.geo.BlockSize)
	for i := range blank {
		blank[i] = ErasedByte
	}

	for blk := start; blk < end; blk += fl.geo.BlockSize {
		fl.mu.Lock()
		_, err := fl.f.WriteAt(blank, int64(blk))
		fl.mu.Unlock()
		if err != nil {
			return errors.Wrapf(err, "flash: erase block 0x%x", blk)
		}
		if fl.kicker != nil {
			fl.kicker.Kick()
		}
	}
	return errors.Wrap(fl.f.Sync(), "flash: sync")
}
