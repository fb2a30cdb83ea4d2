// internal/upgrade/header.go
package upgrade

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/cherryCheese/HouWu-CMM/internal/crc"
	"github.com/cherryCheese/HouWu-CMM/internal/flash"
)

// Magic marks a staged image as verified and ready to install.
const Magic uint32 = 0x12345678

// HeaderSize is the encoded size of Header.
const HeaderSize = 8

// Header lives at flash offset 0 and is consumed by the bootloader.
type Header struct {
	Magic uint32
	Size  uint32
}

// Valid reports whether the bootloader would install the staged image.
func (h Header) Valid() bool {
	return h.Magic == Magic
}

// MarshalBinary encodes the header little-endian.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Size)
	return b, nil
}

// ReadHeader decodes the header block of f.
func ReadHeader(f flash.Flash) (Header, error) {
	b := make([]byte, HeaderSize)
	if err := f.Read(0, b); err != nil {
		return Header{}, errors.Wrap(err, "upgrade: read header")
	}
	return Header{
		Magic: binary.LittleEndian.Uint32(b[0:4]),
		Size:  binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// Checksum is the CRC the device expects in the last two image bytes.
func Checksum(img []byte) uint16 {
	return crc.CRC16(crc.SeedImage, img, crc.PolyCCITT, true)
}

// Seal returns img with its checksum appended (little-endian).
func Seal(img []byte) []byte {
	out := make([]byte, len(img), len(img)+2)
	copy(out, img)
	sum := Checksum(img)
	return append(out, byte(sum), byte(sum>>8))
}

// Inspect reads the activation header and re-checks the staged image
// it describes, the way the bootloader does before installing it.
func Inspect(f flash.Flash) (Header, error) {
	h, err := ReadHeader(f)
	if err != nil {
		return h, err
	}
	if !h.Valid() {
		return h, ErrNoHeader
	}
	if h.Size < 2 {
		return h, errors.Wrapf(ErrImageTooSmall, "size=%d", h.Size)
	}

	img := make([]byte, h.Size)
	if err := f.Read(f.BlockSize(), img); err != nil {
		return h, errors.Wrap(err, "upgrade: read staged image")
	}
	body := img[:h.Size-2]
	stored := binary.LittleEndian.Uint16(img[h.Size-2:])
	if sum := Checksum(body); sum != stored {
		return h, &VerifyError{Computed: sum, Stored: stored}
	}
	return h, nil
}
